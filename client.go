package mediaflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow/imagedata"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 120
)

// ConfigResolver exposes the settings store: which provider serves a node
// type, and the configuration of each provider.
type ConfigResolver interface {
	ProviderIDFor(nodeType NodeType) string
	ProviderConfig(id string) (ProviderConfig, bool)
}

// StaticResolver is a ConfigResolver over fixed maps
type StaticResolver struct {
	NodeProviders map[NodeType]string
	Providers     map[string]ProviderConfig
}

func (s StaticResolver) ProviderIDFor(nodeType NodeType) string {
	return s.NodeProviders[nodeType]
}

func (s StaticResolver) ProviderConfig(id string) (ProviderConfig, bool) {
	cfg, ok := s.Providers[id]
	return cfg, ok
}

// Client is the main entry point for image, video and text generation
type Client struct {
	images   *ImageRegistry
	videos   *VideoRegistry
	texts    *TextRegistry
	resolver ConfigResolver

	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPolling overrides the default poll interval and attempt ceiling
func WithPolling(interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// NewClient creates a new generation client
func NewClient(images *ImageRegistry, videos *VideoRegistry, resolver ConfigResolver, opts ...Option) *Client {
	c := &Client{
		images:       images,
		videos:       videos,
		resolver:     resolver,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveConfig returns the provider configuration for a node type
func (c *Client) ResolveConfig(nodeType NodeType) (ProviderConfig, error) {
	id := c.resolver.ProviderIDFor(nodeType)
	if id == "" {
		return ProviderConfig{}, &ConfigError{Kind: ConfigMissingMapping, NodeType: nodeType}
	}

	cfg, ok := c.resolver.ProviderConfig(id)
	if !ok {
		return ProviderConfig{}, &ConfigError{Kind: ConfigMissingProvider, NodeType: nodeType, Provider: id}
	}

	if cfg.APIKey == "" {
		return ProviderConfig{}, &ConfigError{Kind: ConfigMissingAPIKey, NodeType: nodeType, Provider: id}
	}
	if cfg.Name == "" {
		cfg.Name = id
	}
	return cfg, nil
}

func (c *Client) imageProvider(nodeType NodeType) (ImageProvider, ProviderConfig, error) {
	cfg, err := c.ResolveConfig(nodeType)
	if err != nil {
		return nil, cfg, err
	}
	p, ok := lookup(c.images, cfg)
	if !ok {
		return nil, cfg, &ConfigError{Kind: ConfigUnsupportedProtocol, NodeType: nodeType, Protocol: cfg.Protocol}
	}
	return p, cfg, nil
}

func lookup[P Descriptor](r *Registry[P], cfg ProviderConfig) (P, bool) {
	if cfg.Adapter != "" {
		return r.Get(cfg.Adapter)
	}
	return r.GetByProtocol(cfg.Protocol)
}

// GenerateImage runs one image generation for the provider configured on nodeType
func (c *Client) GenerateImage(ctx context.Context, nodeType NodeType, req *ImageRequest) (*ImageResult, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Message: "request cannot be nil"}
	}

	p, cfg, err := c.imageProvider(nodeType)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	c.logger.Info("generating image",
		zap.String("provider", p.ID()),
		zap.String("nodeType", string(nodeType)),
		zap.String("model", req.Model))

	return p.Generate(ctx, req, cfg)
}

// EditImage is GenerateImage with the input images rewritten as data URIs
func (c *Client) EditImage(ctx context.Context, nodeType NodeType, req *ImageRequest) (*ImageResult, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Message: "request cannot be nil"}
	}
	edit := *req
	edit.InputImages = imagedata.CanonicalAll(req.InputImages)
	return c.GenerateImage(ctx, nodeType, &edit)
}

// ImageCapabilities returns the capabilities of the provider configured on nodeType
func (c *Client) ImageCapabilities(nodeType NodeType) (ImageCapabilities, error) {
	p, _, err := c.imageProvider(nodeType)
	if err != nil {
		return ImageCapabilities{}, err
	}
	return p.Capabilities(), nil
}
