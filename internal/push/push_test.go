package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/nudge/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestPayloadJSON(t *testing.T) {
	p := Payload{
		Title: "Test",
		Body:  "Hello",
		Tag:   "test-tag",
		Data:  map[string]any{"url": "/reminders"},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := got["requireInteraction"]; !ok || v != false {
		t.Errorf("requireInteraction = %v (present %v), want false", v, ok)
	}
	inner, ok := got["data"].(map[string]any)
	if !ok || inner["url"] != "/reminders" {
		t.Errorf("data = %v, want url /reminders", got["data"])
	}
}

// testSubscription returns a subscription with real client keys so the
// payload can be encrypted.
func testSubscription(t *testing.T, endpoint string) *model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return &model.PushSubscription{
		ID:        1,
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	return NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv})
}

func TestServiceSendStatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
		fails   bool
	}{
		{http.StatusCreated, nil, false},
		{http.StatusGone, ErrExpired, true},
		{http.StatusNotFound, ErrExpired, true},
		{http.StatusTooManyRequests, nil, true},
	}

	svc := newTestService(t)
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				t.Error("expected VAPID authorization header")
			}
			w.WriteHeader(tt.status)
		}))

		err := svc.Send(context.Background(), testSubscription(t, srv.URL), Payload{Title: "hi"})
		srv.Close()

		if !tt.fails && err != nil {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
		if tt.fails && err == nil {
			t.Errorf("status %d: expected error", tt.status)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.wantErr)
		}
		if tt.status == http.StatusTooManyRequests && errors.Is(err, ErrExpired) {
			t.Error("429 must be transient, not expired")
		}
	}
}
