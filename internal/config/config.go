package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"opsportal/internal/domain"
)

// Config models portal.yml.
type Config struct {
	Portal struct {
		Name string `yaml:"name" validate:"required"`
	} `yaml:"portal"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Workflows Workflows `yaml:"workflows"`
	Webhooks  []Webhook `yaml:"webhooks,omitempty" validate:"dive"`
}

// Webhook receives events as they are written. An empty Events list means
// every event type.
type Webhook struct {
	URL            string   `yaml:"url" validate:"required,url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" validate:"gte=0,lte=60"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w Webhook) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && w.URL != ""
}

type Server struct {
	Addr               string `yaml:"addr" validate:"required,hostname_port"`
	BasePath           string `yaml:"base_path" validate:"omitempty,startswith=/"`
	AllowLegacyHeaders bool   `yaml:"allow_legacy_headers"`
}

type Logging struct {
	Level    string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Encoding string `yaml:"encoding" validate:"omitempty,oneof=console json"`
}

// Workflows holds the approver roles per order type. The requester's own
// stage is prepended when an order is created.
type Workflows struct {
	OrderProduct []string `yaml:"order_product" validate:"required,min=1,dive,required"`
	OrderService []string `yaml:"order_service" validate:"required,min=1,dive,required"`
}

// ChainFor returns the approver roles for an order type.
func (w Workflows) ChainFor(orderType string) ([]domain.Role, error) {
	var names []string
	switch orderType {
	case "", "product":
		names = w.OrderProduct
	case "service":
		names = w.OrderService
	default:
		return nil, fmt.Errorf("unknown order type %q", orderType)
	}
	return parseRoles(names)
}

func parseRoles(names []string) ([]domain.Role, error) {
	out := make([]domain.Role, 0, len(names))
	for _, n := range names {
		r, ok := domain.ParseRole(n)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", n)
		}
		out = append(out, r)
	}
	return out, nil
}

var validate = validator.New()

// Validate checks struct tags first, then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := checkChain("order_product", c.Workflows.OrderProduct); err != nil {
		return err
	}
	return checkChain("order_service", c.Workflows.OrderService)
}

// Approver reports whether the role can accept or reject orders.
func Approver(r domain.Role) bool {
	return r == domain.RoleContractor || r == domain.RoleManager || r == domain.RoleWarehouse
}

func checkChain(name string, chain []string) error {
	roles, err := parseRoles(chain)
	if err != nil {
		return fmt.Errorf("config.workflows.%s: %w", name, err)
	}
	seen := map[domain.Role]bool{}
	for _, r := range roles {
		if seen[r] {
			return fmt.Errorf("config.workflows.%s lists %s twice", name, r)
		}
		if !Approver(r) {
			return fmt.Errorf("config.workflows.%s: %s cannot approve orders", name, r)
		}
		seen[r] = true
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "portal.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with portal init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(filepath.Base(absOrSelf(workspace))), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

func absOrSelf(p string) string {
	if p == "" {
		p = "."
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Default returns the default Config for a portal.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(name))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `portal:
  name: %q

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allow_legacy_headers: true

logging:
  level: info
  encoding: console

workflows:
  # approvers after the requester; product orders end at the warehouse,
  # service orders at a manager who creates the service
  order_product: [contractor, warehouse]
  order_service: [contractor, manager]

# webhooks:
#   - url: https://example.invalid/portal-events
#     events: [chain.advanced, chain.halted]
`
