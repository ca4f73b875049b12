package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
)

const (
	defaultBaseURL = "https://api.linkedin.com"
	defaultTimeout = 60 * time.Second

	feedshareRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	restliVersion   = "2.0.0"
)

// LinkedIn publishes posts through the LinkedIn REST API: an optional asset
// upload (registerUpload then a binary PUT) followed by a ugcPosts
// submission referencing the uploaded asset.
type LinkedIn struct {
	baseURL    string
	token      string
	authorURN  string
	timeout    time.Duration
	httpClient *http.Client
}

// NewLinkedIn creates a LinkedIn gateway posting as authorURN.
// If timeout <= 0, the default (60s) is used.
func NewLinkedIn(token, authorURN string, timeout time.Duration) *LinkedIn {
	return NewLinkedInWithBaseURL(token, authorURN, defaultBaseURL, timeout)
}

// NewLinkedInWithBaseURL creates a LinkedIn gateway against a custom
// endpoint (for testing).
func NewLinkedInWithBaseURL(token, authorURN, baseURL string, timeout time.Duration) *LinkedIn {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LinkedIn{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		authorURN:  authorURN,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Publish uploads the image (when present) and submits the post. The image
// upload happens first; a submission failure after a successful upload is
// reported as a submission failure and the asset is abandoned, never
// referenced by a partial post.
func (l *LinkedIn) Publish(ctx context.Context, d composer.Draft, image []byte) (*Outcome, error) {
	if d.Hook == "" || d.Body == "" {
		return nil, fmt.Errorf("publishing: draft is not fully populated")
	}
	if l.token == "" {
		return nil, fmt.Errorf("publishing: LinkedIn access token not configured")
	}
	if l.authorURN == "" {
		return nil, fmt.Errorf("publishing: LinkedIn author URN not configured")
	}

	var assetURN string
	if len(image) > 0 {
		urn, uploadURL, err := l.registerUpload(ctx)
		if err != nil {
			return nil, &Error{Stage: StageUpload, Err: err}
		}
		if err := l.uploadImage(ctx, uploadURL, image); err != nil {
			return nil, &Error{Stage: StageUpload, Err: err}
		}
		assetURN = urn
	}

	postID, err := l.submitPost(ctx, composer.FormatPost(d), assetURN)
	if err != nil {
		return nil, &Error{Stage: StageSubmission, Err: err}
	}

	return &Outcome{PostID: postID, AssetURN: assetURN}, nil
}

// registerUploadRequest is the JSON body for POST /v2/assets?action=registerUpload.
type registerUploadRequest struct {
	RegisterUploadRequest registerUploadBody `json:"registerUploadRequest"`
}

type registerUploadBody struct {
	Recipes              []string              `json:"recipes"`
	Owner                string                `json:"owner"`
	ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism struct {
			MediaUpload struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

func (l *LinkedIn) registerUpload(ctx context.Context) (assetURN, uploadURL string, err error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	body, err := json.Marshal(registerUploadRequest{
		RegisterUploadRequest: registerUploadBody{
			Recipes: []string{feedshareRecipe},
			Owner:   l.authorURN,
			ServiceRelationships: []serviceRelationship{
				{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
			},
		},
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.baseURL+"/v2/assets?action=registerUpload", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("creating register request: %w", err)
	}
	l.setHeaders(req)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("registering upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("register upload: %s", statusDetail(resp))
	}

	var reg registerUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return "", "", fmt.Errorf("decoding register response: %w", err)
	}
	if reg.Value.Asset == "" || reg.Value.UploadMechanism.MediaUpload.UploadURL == "" {
		return "", "", fmt.Errorf("register response missing asset or upload URL")
	}
	return reg.Value.Asset, reg.Value.UploadMechanism.MediaUpload.UploadURL, nil
}

func (l *LinkedIn) uploadImage(ctx context.Context, uploadURL string, image []byte) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "image/png")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("image upload: %s", statusDetail(resp))
	}
	return nil
}

// ugcPost is the JSON body for POST /v2/ugcPosts.
type ugcPost struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent specificContent `json:"specificContent"`
	Visibility      visibility      `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    textBlock  `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type textBlock struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type visibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

type ugcPostResponse struct {
	ID string `json:"id"`
}

func (l *LinkedIn) submitPost(ctx context.Context, text, assetURN string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	post := ugcPost{
		Author:         l.authorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: specificContent{
			ShareContent: shareContent{
				ShareCommentary:    textBlock{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: visibility{MemberNetworkVisibility: "PUBLIC"},
	}
	if assetURN != "" {
		post.SpecificContent.ShareContent.ShareMediaCategory = "IMAGE"
		post.SpecificContent.ShareContent.Media = []ugcMedia{{Status: "READY", Media: assetURN}}
	}

	body, err := json.Marshal(post)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating post request: %w", err)
	}
	l.setHeaders(req)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("post submission: %s", statusDetail(resp))
	}

	// The post URN arrives in the x-restli-id header; some responses carry
	// it in the body instead.
	if id := resp.Header.Get("x-restli-id"); id != "" {
		return id, nil
	}
	var created ugcPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		return "", fmt.Errorf("response carried no post ID")
	}
	return created.ID, nil
}

func (l *LinkedIn) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
}

func statusDetail(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	s := strings.TrimSpace(string(snippet))
	if s == "" {
		return fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, s)
}
