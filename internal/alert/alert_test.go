package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camguard/internal/config"
)

func TestSend_NoopWhenCredentialsMissing(t *testing.T) {
	d := New(config.AlertConfig{}, nil)
	d.Send(context.Background(), "driveway", "high", "person at the door")
}

func TestSend_NoopWhenNoDestinationNumber(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := New(config.AlertConfig{AccountID: "AC123", AuthToken: "tok", FromNumber: "+15551234567"}, nil)
	d.messagesURL(srv.URL) // test hook keeps the real gateway out of reach
	d.Send(context.Background(), "driveway", "high", "person at the door")
	assert.False(t, called)
}

func TestSend_PostsFormEncodedRequestWithBasicAuth(t *testing.T) {
	var gotForm url.Values
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := New(config.AlertConfig{
		AccountID:       "AC123",
		AuthToken:       "tok",
		FromNumber:      "+15551234567",
		DefaultToNumber: "+15559876543",
	}, nil)
	d.messagesURL(srv.URL)

	d.Send(context.Background(), "driveway", "high", "a very long description that should be truncated to one hundred characters by the dispatcher before it goes out")

	assert.Equal(t, "AC123", gotUser)
	assert.Equal(t, "tok", gotPass)
	assert.Equal(t, "+15559876543", gotForm.Get("To"))
	assert.Equal(t, "+15551234567", gotForm.Get("From"))
	assert.Contains(t, gotForm.Get("Body"), "high risk on stream")
	assert.LessOrEqual(t, len([]rune(gotForm.Get("Body"))), len(`high risk on stream "driveway". `)+descriptionCap)
}

func TestSend_StorePerSystemNumberOverridesDefault(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := New(config.AlertConfig{
		AccountID:       "AC123",
		AuthToken:       "tok",
		FromNumber:      "+15551234567",
		DefaultToNumber: "+15559876543",
	}, func(ctx context.Context) (string, bool) {
		return "+15550001111", true
	})
	d.messagesURL(srv.URL)

	d.Send(context.Background(), "driveway", "medium", "x")

	assert.Equal(t, "+15550001111", gotForm.Get("To"))
}
