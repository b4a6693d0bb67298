package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Client is a containerd connection scoped to the namespace judge containers
// live in.
type Client struct {
	inner     *containerd.Client
	namespace string

	// concurrent judgements of one language share a single pull
	pulls singleflight.Group

	mu     sync.Mutex
	closed bool
}

func NewClient(ctx context.Context, socket, namespace string) (*Client, error) {
	inner, err := containerd.New(socket,
		containerd.WithDefaultNamespace(namespace),
		containerd.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to containerd at %s: %w", socket, err)
	}

	version, err := inner.Version(ctx)
	if err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("containerd health check failed: %w", err)
	}

	log.Debug().
		Str("socket", socket).
		Str("namespace", namespace).
		Str("version", version.Version).
		Msg("connected to containerd")

	return &Client{inner: inner, namespace: namespace}, nil
}

// Raw returns the underlying containerd client.
func (c *Client) Raw() *containerd.Client {
	return c.inner
}

func (c *Client) WithNamespace(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, c.namespace)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.inner.Close()
}

// PullImage returns the local image for ref, pulling and unpacking it first
// when the namespace does not have it yet.
func (c *Client) PullImage(ctx context.Context, ref string) (containerd.Image, error) {
	ctx = c.WithNamespace(ctx)

	image, err := c.inner.GetImage(ctx, ref)
	if err == nil {
		return image, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s: %v", ErrImage, ref, err)
	}

	v, err, shared := c.pulls.Do(ref, func() (interface{}, error) {
		log.Info().Str("image", ref).Msg("pulling image")
		start := time.Now()
		img, err := c.inner.Pull(ctx, ref, containerd.WithPullUnpack)
		if err != nil {
			return nil, err
		}
		log.Info().Str("image", ref).Dur("took", time.Since(start)).Msg("image pulled")
		return img, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pulling %s: %v", ErrImage, ref, err)
	}
	if shared {
		log.Debug().Str("image", ref).Msg("joined in-flight pull")
	}
	return v.(containerd.Image), nil
}
