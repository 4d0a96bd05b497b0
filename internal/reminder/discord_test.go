package reminder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to target, keeping the path.
type rewriteTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return rt.next.RoundTrip(req)
}

type discordPost struct {
	path, auth, content string
}

func fakeDiscordAPI(t *testing.T, status int) (*http.Client, *httptest.Server, *[]discordPost) {
	var (
		mu    sync.Mutex
		posts []discordPost
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		posts = append(posts, discordPost{path: r.URL.Path, auth: r.Header.Get("Authorization"), content: body.Content})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"message":"Missing Access","code":50001}`))
			return
		}
		w.Write([]byte(`{"id":"900","channel_id":"1181","content":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: rewriteTransport{target: target, next: srv.Client().Transport}}
	return client, srv, &posts
}

func TestDiscordNotifier(t *testing.T) {
	client, _, posts := fakeDiscordAPI(t, http.StatusOK)

	n, err := NewDiscordNotifier(DiscordConfig{Token: "discord-token", ChannelID: "1181"}, client)
	require.NoError(t, err)

	err = n.Notify(context.Background(), Reminder{Time: "08:00", Kind: KindDue, Medications: []string{"Lisinopril 10mg"}, Relative: "due now"})
	require.NoError(t, err)

	require.Len(t, *posts, 1)
	got := (*posts)[0]
	assert.Equal(t, "/api/v9/channels/1181/messages", got.path)
	assert.Equal(t, "Bot discord-token", got.auth)
	assert.Equal(t, "Time for your 08:00 dose (due now): Lisinopril 10mg", got.content)
}

func TestDiscordNotifier_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  DiscordConfig
	}{
		{"no token", DiscordConfig{ChannelID: "1181"}},
		{"no channel", DiscordConfig{Token: "discord-token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDiscordNotifier(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestDiscordNotifier_Failures(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		client, _, _ := fakeDiscordAPI(t, http.StatusForbidden)
		n, err := NewDiscordNotifier(DiscordConfig{Token: "discord-token", ChannelID: "1181"}, client)
		require.NoError(t, err)

		err = n.Notify(context.Background(), Reminder{Time: "08:00", Kind: KindDue})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "discord send:")
		assert.NotContains(t, err.Error(), "discord-token")
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _, posts := fakeDiscordAPI(t, http.StatusOK)
		n, err := NewDiscordNotifier(DiscordConfig{Token: "discord-token", ChannelID: "1181"}, client)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, n.Notify(ctx, Reminder{Time: "08:00"}), context.Canceled)
		assert.Empty(t, *posts)
	})
}
