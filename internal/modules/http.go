package modules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
)

// HTTPSource fetches "<base>/<path>.js", the layout a static game host
// serves.
type HTTPSource struct {
	base   string
	client *httpclient.Client
}

// NewHTTPSource creates a source rooted at base.
func NewHTTPSource(base string, client *httpclient.Client) *HTTPSource {
	if client == nil {
		client = httpclient.New(httpclient.DefaultOptions())
	}
	return &HTTPSource{base: strings.TrimSuffix(base, "/") + "/", client: client}
}

func (h *HTTPSource) Fetch(ctx context.Context, p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}

	body, err := h.client.Get(ctx, h.base+p+".js")
	if err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("fetch module %s: %w", p, err)
	}
	return string(body), nil
}
