package blocks

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/blockbridge/internal/bridge"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrUnknownBlock     = errors.New("unknown block")
	ErrInvalidArguments = errors.New("invalid block arguments")
)

// Argument types.
const (
	TypeNumber = "number"
	TypeString = "string"
)

type MenuItem struct {
	Text  string `yaml:"text" json:"text"`
	Value any    `yaml:"value" json:"value"`
}

type Argument struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Menu    string `yaml:"menu,omitempty" json:"menu,omitempty"`
	Default any    `yaml:"default" json:"default"`
}

// Block is one command block: the event it dispatches and how long the
// caller waits after sending it.
type Block struct {
	Opcode    string        `yaml:"opcode" json:"opcode"`
	Text      string        `yaml:"text" json:"text"`
	Event     string        `yaml:"event" json:"event"`
	Pace      time.Duration `yaml:"pace" json:"-"`
	Arguments []Argument    `yaml:"arguments" json:"arguments"`

	schema *jsonschema.Schema
}

// Catalog is an immutable set of blocks and menus.
type Catalog struct {
	ID    string
	Name  string
	menus map[string][]MenuItem
	order []string
	index map[string]*Block
}

type catalogFile struct {
	ID     string                `yaml:"id"`
	Name   string                `yaml:"name"`
	Menus  map[string][]MenuItem `yaml:"menus"`
	Blocks []Block               `yaml:"blocks"`
}

// Default returns the embedded Robobloq catalogue.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and checks a catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if f.ID == "" {
		return nil, fmt.Errorf("catalog id is required")
	}

	c := &Catalog{
		ID:    f.ID,
		Name:  f.Name,
		menus: f.Menus,
		index: make(map[string]*Block, len(f.Blocks)),
	}
	for i := range f.Blocks {
		b := &f.Blocks[i]
		if err := c.prepare(b); err != nil {
			return nil, fmt.Errorf("block %q: %w", b.Opcode, err)
		}
		c.index[b.Opcode] = b
		c.order = append(c.order, b.Opcode)
	}
	return c, nil
}

func (c *Catalog) prepare(b *Block) error {
	switch {
	case b.Opcode == "":
		return fmt.Errorf("opcode is required")
	case bridge.IsStartEvent(b.Opcode):
		return fmt.Errorf("opcode collides with a start event")
	case c.index[b.Opcode] != nil:
		return fmt.Errorf("duplicate opcode")
	case b.Event == "":
		return fmt.Errorf("event is required")
	case b.Pace < 0:
		return fmt.Errorf("pace must not be negative")
	}

	seen := make(map[string]bool, len(b.Arguments))
	for _, a := range b.Arguments {
		if a.Name == "" {
			return fmt.Errorf("argument name is required")
		}
		if seen[a.Name] {
			return fmt.Errorf("argument %s is duplicated", a.Name)
		}
		seen[a.Name] = true
		if a.Type != TypeNumber && a.Type != TypeString {
			return fmt.Errorf("argument %s: type must be %s or %s", a.Name, TypeNumber, TypeString)
		}
		if a.Menu != "" && len(c.menus[a.Menu]) == 0 {
			return fmt.Errorf("argument %s: menu %q is not defined", a.Name, a.Menu)
		}
	}

	schema, err := c.compileSchema(b)
	if err != nil {
		return err
	}
	b.schema = schema

	// Defaults must satisfy the block's own schema.
	if _, err := b.Normalize(nil); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// ArgumentSchema is the JSON schema that arguments to b must satisfy.
func (c *Catalog) ArgumentSchema(b *Block) map[string]any {
	props := make(map[string]any, len(b.Arguments))
	for _, a := range b.Arguments {
		p := map[string]any{"type": a.Type}
		if a.Default != nil {
			p["default"] = a.Default
		}
		if a.Menu != "" {
			values := make([]any, 0, len(c.menus[a.Menu]))
			for _, item := range c.menus[a.Menu] {
				values = append(values, item.Value)
			}
			p["enum"] = values
		}
		props[a.Name] = p
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
}

func (c *Catalog) compileSchema(b *Block) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(c.ArgumentSchema(b))
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}

	url := "https://blockbridge.invalid/blocks/" + b.Opcode + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

// Lookup returns the block for opcode or ErrUnknownBlock.
func (c *Catalog) Lookup(opcode string) (*Block, error) {
	b, ok := c.index[opcode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, opcode)
	}
	return b, nil
}

// Blocks lists blocks in catalogue order.
func (c *Catalog) Blocks() []*Block {
	out := make([]*Block, 0, len(c.order))
	for _, op := range c.order {
		out = append(out, c.index[op])
	}
	return out
}

// Menu returns the items of a named menu.
func (c *Catalog) Menu(name string) ([]MenuItem, bool) {
	items, ok := c.menus[name]
	return items, ok
}

// MenuNames lists menu names sorted.
func (c *Catalog) MenuNames() []string {
	names := make([]string, 0, len(c.menus))
	for n := range c.menus {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Normalize fills defaults, coerces numeric strings for number arguments and
// validates the result. The returned payload is safe to hand to the bridge.
func (b *Block) Normalize(args map[string]any) (bridge.Payload, error) {
	merged := make(map[string]any, len(b.Arguments))
	for _, a := range b.Arguments {
		if a.Default != nil {
			merged[a.Name] = a.Default
		}
	}
	for k, v := range args {
		merged[k] = v
	}
	for _, a := range b.Arguments {
		if a.Type != TypeNumber {
			continue
		}
		if s, ok := merged[a.Name].(string); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				merged[a.Name] = n
			}
		}
	}

	// Round-trip so the validator sees plain JSON values.
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := b.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return bridge.Payload(doc), nil
}

// PaceMS is Pace in milliseconds.
func (b *Block) PaceMS() int64 {
	return b.Pace.Milliseconds()
}
