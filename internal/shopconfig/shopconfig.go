// Package shopconfig is the one concrete loader in this module (spec.md
// §6): shop configuration is explicitly file-backed, so unlike the
// catalog/watcher/notification stores (contract.* interfaces whose only
// in-module implementation is the JSON-file reference store in
// internal/filestore), the scan core owns this reader end-to-end. One
// JSON file per shop, decoded with encoding/json and validated with
// go-playground/validator/v10 — the same pairing the teacher's own
// internal/config/config.go uses for its single application config file.
package shopconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
	"github.com/pricewatch/scan-core/pkg/log"
)

const component = "shopconfig"

// rawShopConfig mirrors domain.ShopConfig's JSON shape with validator tags;
// decoding to this intermediate type keeps struct-level validation rules
// out of internal/domain, which stays I/O- and dependency-free.
type rawShopConfig struct {
	ID                string              `json:"id" validate:"required"`
	BaseURL           string              `json:"baseUrl" validate:"required,url"`
	SearchURLTemplate string              `json:"searchUrlTemplate" validate:"required"`
	DirectHitPattern  string              `json:"directHitPattern"`
	Engine            domain.Engine       `json:"engine" validate:"required,oneof=static rendered"`
	Selectors         domain.ShopSelectors `json:"selectors"`
	AntiBot           rawAntiBot          `json:"antiBot"`
	PriceLocale       string              `json:"priceLocale" validate:"omitempty,oneof=european us"`
	Disabled          bool                `json:"disabled"`
}

type rawAntiBot struct {
	DelayMS        int  `json:"delayMs" validate:"gte=0"`
	MaxConcurrency int  `json:"maxConcurrency" validate:"gte=0"`
	UseProxy       bool `json:"useProxy"`
}

// Loader reads every shop config file from a directory. It implements
// contract.ShopConfigLoader.
type Loader struct {
	dir       string
	validator *validator.Validate
}

// NewLoader builds a Loader rooted at dir. dir must contain one *.json file
// per shop; filenames are derived from the shop id (see Filename) but the
// loader does not require callers to have used that convention — it reads
// every *.json file in the directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, validator: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ListEnabledShops reads every *.json file under the loader's directory,
// decodes and validates it, and returns the shops for which Disabled is
// false. Per spec.md §6, a single unreadable file or a directory that
// cannot be listed at all is fatal: the cycle driver must abort with a
// non-zero exit.
func (l *Loader) ListEnabledShops(_ context.Context) ([]domain.ShopConfig, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, fmt.Sprintf("shop config directory unreadable: %s", l.dir))
	}

	var shops []domain.ShopConfig
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		shop, err := l.loadOne(path)
		if err != nil {
			return nil, err
		}
		if shop.Disabled {
			log.WithComponentAndFields(component, log.Fields{"shopId": shop.ID, "file": path}).Info("shop disabled, excluded from cycle")
			continue
		}
		shops = append(shops, shop)
	}
	return shops, nil
}

func (l *Loader) loadOne(path string) (domain.ShopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ShopConfig{}, errors.Wrap(err, errors.Internal, fmt.Sprintf("shop config file unreadable: %s", path))
	}

	var raw rawShopConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ShopConfig{}, errors.Wrap(err, errors.InvalidInput, fmt.Sprintf("shop config file malformed: %s", path))
	}

	if err := l.validator.Struct(&raw); err != nil {
		return domain.ShopConfig{}, errors.Wrap(err, errors.InvalidInput, fmt.Sprintf("shop config file failed validation: %s", path))
	}

	return domain.ShopConfig{
		ID:                raw.ID,
		BaseURL:           raw.BaseURL,
		SearchURLTemplate: raw.SearchURLTemplate,
		DirectHitPattern:  raw.DirectHitPattern,
		Engine:            raw.Engine,
		Selectors:         raw.Selectors,
		AntiBot: domain.AntiBotConfig{
			DelayMS:        raw.AntiBot.DelayMS,
			MaxConcurrency: raw.AntiBot.MaxConcurrency,
			UseProxy:       raw.AntiBot.UseProxy,
		},
		PriceLocale: raw.PriceLocale,
		Disabled:    raw.Disabled,
	}, nil
}

// Filename derives the canonical config filename for a shop id, following
// the teacher's internal/service/task/storage.generateFilename convention
// (kebab-case via strcase, here snake_case per spec.md §3.1) minus the
// disambiguating hash suffix: shop ids are already unique and operator
// authored, so a human-editable "<id>.json" is preferable to a hashed one.
func Filename(shopID string) string {
	return strcase.ToSnake(shopID) + ".json"
}
