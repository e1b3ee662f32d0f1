package countries

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CallbackPrefix prefixes country names in inline button callback data.
const CallbackPrefix = "country:"

// OtherOption is the callback payload of the free-text country button. No
// country may use it as a name.
const OtherOption = "other"

// maxCallbackData is Telegram's limit on callback data length in bytes.
const maxCallbackData = 64

var (
	ErrExists      = errors.New("country already exists")
	ErrNotFound    = errors.New("country not found")
	ErrEmptyName   = errors.New("country name is empty")
	ErrNameTooLong = errors.New("country name is too long")
	ErrReserved    = errors.New("country name is reserved")
)

// DefaultCountries is served while the registry file does not exist.
var DefaultCountries = []string{"Россия", "Казахстан", "Беларусь", "Абхазия"}

// Registry is the persisted, ordered list of countries offered during intake.
// The file is read on every call and rewritten whole on every mutation.
type Registry struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// New creates a registry backed by path. Files ending in .yml or .yaml are
// stored as YAML, anything else as a JSON array.
func New(logger *slog.Logger, path string) *Registry {
	return &Registry{
		path: path,
		log:  logger.With(slog.String("component", "countries")),
	}
}

// List returns the current countries in order.
func (r *Registry) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Add appends name and persists the list.
func (r *Registry) Add(name string) error {
	op := "countries.Add"
	name = strings.TrimSpace(name)
	if err := checkName(name); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if slices.Contains(list, name) {
		return fmt.Errorf("%s: %q: %w", op, name, ErrExists)
	}
	list = append(list, name)
	if err := r.save(list); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.log.Info("country added", slog.String("name", name))
	return nil
}

// Remove deletes the first entry equal to name and persists the list.
func (r *Registry) Remove(name string) error {
	op := "countries.Remove"
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	idx := slices.Index(list, name)
	if idx == -1 {
		return fmt.Errorf("%s: %q: %w", op, name, ErrNotFound)
	}
	list = slices.Delete(list, idx, idx+1)
	if err := r.save(list); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.log.Info("country removed", slog.String("name", name))
	return nil
}

func checkName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(CallbackPrefix)+len(name) > maxCallbackData {
		return ErrNameTooLong
	}
	if name == OtherOption {
		return ErrReserved
	}
	return nil
}

func (r *Registry) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(r.path))
	return ext == ".yml" || ext == ".yaml"
}

func (r *Registry) load() ([]string, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return slices.Clone(DefaultCountries), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}

	var list []string
	if r.isYAML() {
		err = yaml.Unmarshal(raw, &list)
	} else {
		err = json.Unmarshal(raw, &list)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return list, nil
}

func (r *Registry) save(list []string) error {
	var raw []byte
	if r.isYAML() {
		out, err := yaml.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		raw = out
	} else {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		raw = buf.Bytes()
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".countries-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}
