package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok123/getMe" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true,"result":{"id":7,"username":"trend_bot","first_name":"Trend"}}`))
	}))
	defer srv.Close()

	me, err := NewWithBaseURL("tok123", srv.URL).GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error = %v", err)
	}
	if me.Username != "trend_bot" || me.ID != 7 {
		t.Errorf("GetMe() = %+v", me)
	}
}

func TestUpdates(t *testing.T) {
	var gotReq updatesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":100,"message":{"message_id":1,"chat":{"id":55,"type":"private"},"from":{"id":55,"username":"samir"},"text":"/scan"}},
			{"update_id":101,"message":{"message_id":2,"chat":{"id":55,"type":"private"},"text":"/topic argan oil"}}
		]}`))
	}))
	defer srv.Close()

	ups, err := NewWithBaseURL("tok", srv.URL).Updates(context.Background(), 100, 25)
	if err != nil {
		t.Fatalf("Updates() error = %v", err)
	}

	if gotReq.Offset != 100 || gotReq.Timeout != 25 {
		t.Errorf("request = %+v", gotReq)
	}
	if len(ups) != 2 {
		t.Fatalf("len(updates) = %d, want 2", len(ups))
	}
	if ups[0].ID != 100 || ups[0].Message.Text != "/scan" {
		t.Errorf("updates[0] = %+v", ups[0])
	}
	if ups[1].Message.Chat.ID != 55 {
		t.Errorf("updates[1].Message.Chat.ID = %d", ups[1].Message.Chat.ID)
	}
}

func TestSendMessage(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	err := NewWithBaseURL("tok", srv.URL).SendMessage(context.Background(), 55, "draft is ready")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got.ChatID != 55 || got.Text != "draft is ready" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendPhoto(t *testing.T) {
	photo := []byte("fake-png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "55" {
			t.Errorf("chat_id = %q", got)
		}
		if got := r.FormValue("caption"); got != "preview" {
			t.Errorf("caption = %q", got)
		}
		f, _, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("photo part: %v", err)
		}
		defer f.Close()
		buf := make([]byte, len(photo))
		f.Read(buf)
		if string(buf) != string(photo) {
			t.Errorf("photo bytes = %q", buf)
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	err := NewWithBaseURL("tok", srv.URL).SendPhoto(context.Background(), 55, photo, "preview")
	if err != nil {
		t.Fatalf("SendPhoto() error = %v", err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := NewWithBaseURL("tok", srv.URL).SendMessage(context.Background(), 1, "hi")
	if err == nil {
		t.Fatal("expected error for ok=false response")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error %q does not carry the API description", err)
	}
}

func TestUndecodableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream error</html>"))
	}))
	defer srv.Close()

	err := NewWithBaseURL("tok", srv.URL).SendMessage(context.Background(), 1, "hi")
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q does not name the HTTP status", err)
	}
}
