package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2025, 11, 28, 12, 0, 0, 0, time.UTC)
	raw := buildMessage("website@phoesis.io", Message{
		To:      []string{"tony@phoesis.io", "eric@phoesis.io"},
		ReplyTo: "ada@example.com",
		Subject: "New AI inquiry from Ada",
		Body:    "line one\nline two",
	}, now)

	assert.Contains(t, raw, "From: website@phoesis.io\r\n")
	assert.Contains(t, raw, "To: tony@phoesis.io, eric@phoesis.io\r\n")
	assert.Contains(t, raw, "Reply-To: ada@example.com\r\n")
	assert.Contains(t, raw, "Subject: New AI inquiry from Ada\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two\r\n"))
}

func TestResendSender_PostsJSON(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	s := NewResendSender(srv.URL, "re_test", "")
	err := s.Send(context.Background(), Message{To: []string{"tony@phoesis.io"}, Subject: "hi", Body: "body"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFrom, got.From)
	assert.Equal(t, []string{"tony@phoesis.io"}, got.To)
	assert.Equal(t, "body", got.Text)
}

func TestResendSender_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid from"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewResendSender(srv.URL, "re_test", "").Send(context.Background(), Message{To: []string{"a@b.c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")

	err = NewResendSender(srv.URL, "", "").Send(context.Background(), Message{To: []string{"a@b.c"}})
	assert.Error(t, err)
}
