package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostmarkSender_Send(t *testing.T) {
	var got postmarkEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email", r.URL.Path)
		assert.Equal(t, "pm-token", r.Header.Get("X-Postmark-Server-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(postmarkResponse{To: got.To, MessageID: "pm-123"})
	}))
	defer server.Close()

	p := NewPostmarkSender("pm-token")
	p.baseURL = server.URL

	id, err := p.Send(context.Background(), &Email{
		To:       []string{"a@example.com", "b@example.com"},
		From:     "billing@example.com",
		Subject:  "Hello",
		TextBody: "hi",
		Tag:      "payment-receipt",
	})

	require.NoError(t, err)
	assert.Equal(t, "pm-123", id)
	assert.Equal(t, "a@example.com,b@example.com", got.To)
	assert.Equal(t, "payment-receipt", got.Tag)
	assert.Equal(t, "outbound", got.MessageStream)
}

func TestPostmarkSender_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantPermanent bool
	}{
		{"invalid request", http.StatusUnprocessableEntity, `{"ErrorCode":300,"Message":"Invalid email request"}`, "postmark error 300", true},
		{"inactive recipient", http.StatusUnprocessableEntity, `{"ErrorCode":406,"Message":"Inactive recipient"}`, "postmark error 406", true},
		{"bad token", http.StatusUnauthorized, `{"ErrorCode":10,"Message":"Bad or missing Server API token"}`, "postmark error 10", false},
		{"gateway error", http.StatusBadGateway, `<html>bad gateway</html>`, "postmark error: <html>", false},
		{"bad json", http.StatusOK, `not json`, "failed to parse response", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewPostmarkSender("pm-token")
			p.baseURL = server.URL

			_, err := p.Send(context.Background(), &Email{To: []string{"a@example.com"}})
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
		})
	}
}
