package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMailURL = "https://mail.example.test/v1"

func newMockedMailer(t *testing.T) *HTTPMailer {
	t.Helper()
	m := NewHTTPMailer(testMailURL, "key-123", "clinic@example.test")
	m.Client().SetRetryCount(0)
	httpmock.ActivateNonDefault(m.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return m
}

func TestHTTPMailer_SendEmail(t *testing.T) {
	m := newMockedMailer(t)

	var got mailRequest
	httpmock.RegisterResponder(http.MethodPost, testMailURL+"/messages",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer key-123", req.Header.Get("Authorization"))
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewJsonResponse(http.StatusAccepted, mailResponse{ID: "msg-1"})
		})

	err := m.SendEmail(context.Background(), "sup@example.test", "Review", "Please review")
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, mailRequest{
		From:    "clinic@example.test",
		To:      "sup@example.test",
		Subject: "Review",
		Text:    "Please review",
	}, got)
}

func TestHTTPMailer_ErrorStatus(t *testing.T) {
	m := newMockedMailer(t)
	httpmock.RegisterResponder(http.MethodPost, testMailURL+"/messages",
		httpmock.NewJsonResponderOrPanic(http.StatusUnprocessableEntity, mailResponse{Message: "invalid recipient"}))

	err := m.SendEmail(context.Background(), "bad", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestHTTPMailer_TransportError(t *testing.T) {
	m := newMockedMailer(t)
	err := m.SendEmail(context.Background(), "a@example.test", "s", "b")
	assert.Error(t, err)
}
