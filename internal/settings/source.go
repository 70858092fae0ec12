package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
)

// RepositorySource loads settings from the database.
type RepositorySource struct {
	repo domain.Repository
}

// NewRepositorySource creates a source over repo.
func NewRepositorySource(repo domain.Repository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

func (s *RepositorySource) Name() string { return "repository" }

func (s *RepositorySource) Load(ctx context.Context) (*Snapshot, error) {
	global := DefaultGlobal()
	g, err := s.repo.GetGlobalSettings(ctx)
	switch {
	case err == nil:
		global = *g
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("global settings: %w", err)
	}

	banks, err := s.repo.ListBankSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("bank settings: %w", err)
	}

	snap := &Snapshot{Global: global, Banks: make(map[string]domain.BankSettings, len(banks))}
	for _, b := range banks {
		snap.Banks[b.Code] = *b
	}
	return snap, nil
}

func (s *RepositorySource) SaveBank(ctx context.Context, b *domain.BankSettings) error {
	return s.repo.SaveBankSettings(ctx, b)
}

func (s *RepositorySource) DeleteBank(ctx context.Context, code string) error {
	return s.repo.DeleteBankSettings(ctx, code)
}

func (s *RepositorySource) SaveGlobal(ctx context.Context, g *domain.GlobalSettings) error {
	return s.repo.SaveGlobalSettings(ctx, g)
}

// GlobalFile is the file holding global settings inside a FileSource directory.
const GlobalFile = "_global.yaml"

// FileSource loads settings from a directory of YAML files: GlobalFile for the
// global settings and one <bank code>.yaml (or .yml) per bank. Hidden files
// are ignored.
type FileSource struct {
	dir string
}

// NewFileSource creates a source over dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Dir returns the watched directory.
func (s *FileSource) Dir() string { return s.dir }

func (s *FileSource) Name() string { return "file:" + s.dir }

type globalFile struct {
	Enabled     *bool            `yaml:"enabled"`
	CommonRules []map[string]any `yaml:"common_rules"`
}

type bankFile struct {
	Name           string           `yaml:"name"`
	Enabled        *bool            `yaml:"enabled"`
	UseCommonRules *bool            `yaml:"use_common_rules"`
	Rules          []map[string]any `yaml:"rules"`
}

func (s *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read settings dir: %w", err)
	}

	snap := &Snapshot{Global: DefaultGlobal(), Banks: map[string]domain.BankSettings{}}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() || strings.HasPrefix(name, ".") || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}

		if name == GlobalFile {
			g, err := decodeGlobal(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			snap.Global = g
			continue
		}

		code := strings.TrimSuffix(name, filepath.Ext(name))
		b, err := decodeBank(code, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		snap.Banks[code] = b
	}
	return snap, nil
}

func decodeGlobal(data []byte) (domain.GlobalSettings, error) {
	var f globalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.GlobalSettings{}, err
	}
	rules, err := toRuleConfigs(f.CommonRules)
	if err != nil {
		return domain.GlobalSettings{}, err
	}
	return domain.GlobalSettings{Enabled: boolOr(f.Enabled, true), CommonRules: rules}, nil
}

func decodeBank(code string, data []byte) (domain.BankSettings, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.BankSettings{}, err
	}
	rules, err := toRuleConfigs(f.Rules)
	if err != nil {
		return domain.BankSettings{}, err
	}
	return domain.BankSettings{
		Code:           code,
		Name:           f.Name,
		Enabled:        boolOr(f.Enabled, true),
		UseCommonRules: boolOr(f.UseCommonRules, true),
		Rules:          rules,
	}, nil
}

// DecodeRules parses a rule list written as YAML or JSON.
func DecodeRules(data []byte) ([]domain.RuleConfig, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return toRuleConfigs(raw)
}

// toRuleConfigs normalises YAML-decoded rule objects through JSON so nested
// rule lists decode exactly like the stored form.
func toRuleConfigs(raw []map[string]any) ([]domain.RuleConfig, error) {
	if raw == nil {
		return []domain.RuleConfig{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return domain.ParseRuleConfigs(data)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
