package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestResponseMeta_CapturesFirstDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 429},
	})
	// Later document responses (redirect chains, iframes) do not overwrite.
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	require.Equal(t, 429, meta.status())
}

func TestResponseMeta_IgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeStylesheet,
		Response: &network.Response{Status: 404},
	})
	require.Equal(t, http.StatusOK, meta.status())
}

func TestResponseMeta_DefaultsToOK(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusOK, newResponseMeta().status())
}

func TestIsBrowserCrash(t *testing.T) {
	t.Parallel()

	require.True(t, isBrowserCrash(errors.New("chrome failed to start: crashpad")))
	require.True(t, isBrowserCrash(errors.New("Target closed")))
	require.False(t, isBrowserCrash(errors.New("net::ERR_NAME_NOT_RESOLVED")))
	require.False(t, isBrowserCrash(nil))
}

func TestExpandListing_NoSelectorIsNoop(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{}}
	require.Empty(t, f.expandListing())
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not canceled")
	}
}
