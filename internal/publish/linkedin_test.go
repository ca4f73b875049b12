package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
)

func testDraft() composer.Draft {
	return composer.Draft{
		Hook:         "The desert is a power plant now.",
		Body:         "The Ouarzazate complex added another field of mirrors.",
		CallToAction: "Would you invest in solar?",
		Hashtags:     []string{"Morocco", "Solar"},
	}
}

func TestLinkedIn_PublishTextOnly(t *testing.T) {
	var got ugcPost
	assetCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
		assetCalls++
	})
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
			t.Errorf("X-Restli-Protocol-Version = %q", r.Header.Get("X-Restli-Protocol-Version"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding post body: %v", err)
		}
		w.Header().Set("x-restli-id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := NewLinkedInWithBaseURL("tok", "urn:li:person:abc", srv.URL, 0)
	out, err := gw.Publish(context.Background(), testDraft(), nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if out.PostID != "urn:li:share:42" {
		t.Errorf("PostID = %q", out.PostID)
	}
	if out.AssetURN != "" {
		t.Errorf("AssetURN = %q, want empty for text-only post", out.AssetURN)
	}
	if assetCalls != 0 {
		t.Errorf("asset endpoint called %d times for text-only post", assetCalls)
	}
	if got.Author != "urn:li:person:abc" {
		t.Errorf("author = %q", got.Author)
	}
	if got.SpecificContent.ShareContent.ShareMediaCategory != "NONE" {
		t.Errorf("media category = %q, want NONE", got.SpecificContent.ShareContent.ShareMediaCategory)
	}
	if len(got.SpecificContent.ShareContent.Media) != 0 {
		t.Error("text-only post carried media entries")
	}
}

func TestLinkedIn_PublishWithImage(t *testing.T) {
	image := []byte("png-bytes")
	var srv *httptest.Server
	var uploaded []byte
	var got ugcPost

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "registerUpload" {
			t.Errorf("action = %q", r.URL.Query().Get("action"))
		}
		var reg registerUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			t.Errorf("decoding register body: %v", err)
		}
		if reg.RegisterUploadRequest.Owner != "urn:li:person:abc" {
			t.Errorf("owner = %q", reg.RegisterUploadRequest.Owner)
		}
		if len(reg.RegisterUploadRequest.Recipes) != 1 || reg.RegisterUploadRequest.Recipes[0] != feedshareRecipe {
			t.Errorf("recipes = %v", reg.RegisterUploadRequest.Recipes)
		}

		resp := registerUploadResponse{}
		resp.Value.Asset = "urn:li:digitalmediaAsset:img1"
		resp.Value.UploadMechanism.MediaUpload.UploadURL = srv.URL + "/media/upload"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/media/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("upload method = %q, want PUT", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("upload Authorization = %q", r.Header.Get("Authorization"))
		}
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("x-restli-id", "urn:li:share:99")
		w.WriteHeader(http.StatusCreated)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	gw := NewLinkedInWithBaseURL("tok", "urn:li:person:abc", srv.URL, 0)
	out, err := gw.Publish(context.Background(), testDraft(), image)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if string(uploaded) != string(image) {
		t.Errorf("uploaded %q, want %q", uploaded, image)
	}
	if out.AssetURN != "urn:li:digitalmediaAsset:img1" {
		t.Errorf("AssetURN = %q", out.AssetURN)
	}
	sc := got.SpecificContent.ShareContent
	if sc.ShareMediaCategory != "IMAGE" {
		t.Errorf("media category = %q, want IMAGE", sc.ShareMediaCategory)
	}
	if len(sc.Media) != 1 || sc.Media[0].Media != "urn:li:digitalmediaAsset:img1" {
		t.Errorf("media = %+v", sc.Media)
	}
	if sc.Media[0].Status != "READY" {
		t.Errorf("media status = %q, want READY", sc.Media[0].Status)
	}
}

func TestLinkedIn_UploadFailure(t *testing.T) {
	posts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		posts++
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := NewLinkedInWithBaseURL("tok", "urn:li:person:abc", srv.URL, 0)
	_, err := gw.Publish(context.Background(), testDraft(), []byte("img"))

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v (%T), want *publish.Error", err, err)
	}
	if perr.Stage != StageUpload {
		t.Errorf("Stage = %q, want %q", perr.Stage, StageUpload)
	}
	if posts != 0 {
		t.Errorf("submission attempted %d times after failed upload", posts)
	}
}

func TestLinkedIn_SubmissionFailureAfterUpload(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
		resp := registerUploadResponse{}
		resp.Value.Asset = "urn:li:digitalmediaAsset:img1"
		resp.Value.UploadMechanism.MediaUpload.UploadURL = srv.URL + "/media/upload"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/media/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	gw := NewLinkedInWithBaseURL("tok", "urn:li:person:abc", srv.URL, 0)
	out, err := gw.Publish(context.Background(), testDraft(), []byte("img"))

	if out != nil {
		t.Errorf("got outcome %+v despite failed submission", out)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v (%T), want *publish.Error", err, err)
	}
	if perr.Stage != StageSubmission {
		t.Errorf("Stage = %q, want %q", perr.Stage, StageSubmission)
	}
}

func TestLinkedIn_PostIDFromBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ugcPostResponse{ID: "urn:li:share:body"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := NewLinkedInWithBaseURL("tok", "urn:li:person:abc", srv.URL, 0)
	out, err := gw.Publish(context.Background(), testDraft(), nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if out.PostID != "urn:li:share:body" {
		t.Errorf("PostID = %q", out.PostID)
	}
}

func TestLinkedIn_Preconditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network call made despite failed precondition")
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		gw    *LinkedIn
		draft composer.Draft
	}{
		{"empty draft", NewLinkedInWithBaseURL("tok", "urn:li:person:abc", srv.URL, 0), composer.Draft{}},
		{"missing token", NewLinkedInWithBaseURL("", "urn:li:person:abc", srv.URL, 0), testDraft()},
		{"missing author", NewLinkedInWithBaseURL("tok", "", srv.URL, 0), testDraft()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.gw.Publish(context.Background(), tt.draft, nil); err == nil {
				t.Error("expected precondition error, got nil")
			}
		})
	}
}
