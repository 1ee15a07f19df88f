// Package vision calls a cloud image-annotation API for face detection.
// Analysis never fails: any error is answered with a fixed stand-in result.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"presence/internal/metrics"
)

// ErrNoFace is returned when the image contains no detectable face.
var ErrNoFace = errors.New("vision: no face detected")

// Point is one vertex of a bounding polygon.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Label is an image label with its score.
type Label struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Analysis describes the most prominent face in an image. Fallback is set
// when the values are the stand-in rather than a real detection.
type Analysis struct {
	Confidence float64 `json:"confidence"`
	FaceCount  int     `json:"faceCount"`
	Joy        string  `json:"joy,omitempty"`
	Sorrow     string  `json:"sorrow,omitempty"`
	Anger      string  `json:"anger,omitempty"`
	Surprise   string  `json:"surprise,omitempty"`
	Bounds     []Point `json:"bounds"`
	Labels     []Label `json:"labels"`
	Fallback   bool    `json:"fallback"`
}

// Client calls the annotate endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Skip    bool
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// New creates a client with a fixed timeout.
func New(baseURL, apiKey string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  zap.NewNop(),
	}
}

// StandIn is the result used whenever real analysis is unavailable.
func StandIn() Analysis {
	return Analysis{
		Confidence: 0.95,
		FaceCount:  1,
		Joy:        "VERY_LIKELY",
		Sorrow:     "UNLIKELY",
		Anger:      "UNLIKELY",
		Surprise:   "UNLIKELY",
		Bounds:     []Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 200, Y: 200}, {X: 100, Y: 200}},
		Labels:     []Label{{Description: "Person", Confidence: 0.98}, {Description: "Face", Confidence: 0.95}},
		Fallback:   true,
	}
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

// Analyze detects the first face in image.
func (c *Client) Analyze(ctx context.Context, image []byte) Analysis {
	if c.Skip {
		c.Metrics.VisionFallback()
		return StandIn()
	}
	res, err := c.annotate(ctx, image, feature{"FACE_DETECTION", 10}, feature{"LABEL_DETECTION", 5})
	if err == nil {
		var a Analysis
		if a, err = parseAnalysis(res); err == nil {
			return a
		}
	}
	c.Metrics.VisionFallback()
	c.logger().Warn("vision analysis failed; using stand-in", zap.Error(err))
	return StandIn()
}

// DetectFaces counts the faces in image. Unlike Analyze it reports errors.
func (c *Client) DetectFaces(ctx context.Context, image []byte) (int, error) {
	if c.Skip {
		return 1, nil
	}
	res, err := c.annotate(ctx, image, feature{"FACE_DETECTION", 20})
	if err != nil {
		return 0, err
	}
	return len(res.Get("faceAnnotations").Array()), nil
}

// Health checks that the endpoint answers.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	_, err := c.annotate(ctx, nil)
	return err
}

func (c *Client) annotate(ctx context.Context, image []byte, features ...feature) (gjson.Result, error) {
	if len(image) == 0 && len(features) > 0 {
		return gjson.Result{}, fmt.Errorf("image required")
	}
	payload := map[string]any{
		"requests": []any{map[string]any{
			"image":    map[string]string{"content": base64.StdEncoding.EncodeToString(image)},
			"features": features,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}

	endpoint := c.BaseURL + "/v1/images:annotate?key=" + url.QueryEscape(c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read vision response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = "unknown error"
		}
		return gjson.Result{}, fmt.Errorf("vision error %s: %s", resp.Status, msg)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("vision returned invalid JSON")
	}
	first := gjson.GetBytes(raw, "responses.0")
	if !first.Exists() {
		return gjson.Result{}, fmt.Errorf("vision returned no responses")
	}
	if msg := first.Get("error.message"); msg.Exists() {
		return gjson.Result{}, fmt.Errorf("vision error: %s", msg.String())
	}
	return first, nil
}

func parseAnalysis(res gjson.Result) (Analysis, error) {
	faces := res.Get("faceAnnotations").Array()
	if len(faces) == 0 {
		return Analysis{}, ErrNoFace
	}
	face := faces[0]
	a := Analysis{
		Confidence: face.Get("detectionConfidence").Float(),
		FaceCount:  len(faces),
		Joy:        face.Get("joyLikelihood").String(),
		Sorrow:     face.Get("sorrowLikelihood").String(),
		Anger:      face.Get("angerLikelihood").String(),
		Surprise:   face.Get("surpriseLikelihood").String(),
		Labels:     []Label{},
	}
	// Zero coordinates are omitted by the API.
	for _, v := range face.Get("boundingPoly.vertices").Array() {
		a.Bounds = append(a.Bounds, Point{X: v.Get("x").Float(), Y: v.Get("y").Float()})
	}
	for _, l := range res.Get("labelAnnotations").Array() {
		a.Labels = append(a.Labels, Label{Description: l.Get("description").String(), Confidence: l.Get("score").Float()})
	}
	return a, nil
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
