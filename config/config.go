package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/updownbot/internal/application/engine"
	"github.com/alejandrodnm/updownbot/internal/application/sizing"
	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/application/trend"
	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	API     APIConfig     `yaml:"api"`
	Paper   PaperConfig   `yaml:"paper"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// TradingConfig controla qué mercados se operan y las reglas de compra.
// Los campos puntero distinguen un valor ausente, que toma el default, de un
// 0 explícito. size_reduce_after_secs: 0 desactiva la reducción.
type TradingConfig struct {
	Markets         []string `yaml:"markets"`    // activos: btc, eth, sol, xrp
	Timeframes      []string `yaml:"timeframes"` // 15m, 1h
	CheckIntervalMs int      `yaml:"check_interval_ms"`
	DataSource      string   `yaml:"data_source"` // api | ws

	CostPerPairMax   float64 `yaml:"cost_per_pair_max"`
	MinSidePrice     float64 `yaml:"min_side_price"`
	MaxSidePrice     float64 `yaml:"max_side_price"`
	EntryLegs        int     `yaml:"entry_legs"`
	LockLegs         int     `yaml:"lock_legs"`
	ExpansionMaxBuys int     `yaml:"expansion_max_buys"`

	CooldownSeconds   int  `yaml:"cooldown_seconds"`
	CooldownSeconds1h *int `yaml:"cooldown_seconds_1h"` // solo mercados 1h

	Shares              float64 `yaml:"shares"` // si > 0 sustituye los tamaños por tipo
	SizeReduceAfterSecs *int    `yaml:"size_reduce_after_secs"`
	SizeMinRatio        float64 `yaml:"size_min_ratio"`
	SizeMinShares       float64 `yaml:"size_min_shares"`
	MaxSharesPerSide    float64 `yaml:"max_shares_per_side"` // 0 = sin límite

	TrendWindow     int      `yaml:"trend_window"`
	TrendMinSamples int      `yaml:"trend_min_samples"`
	TrendThreshold  *float64 `yaml:"trend_threshold"` // 0 permitido

	ClosurePollIntervalSeconds int `yaml:"closure_poll_interval_seconds"`
	DiscoveryIntervalSeconds   int `yaml:"discovery_interval_seconds"`

	// MarketTypes ajusta tamaño base y cooldown por tipo ("btc-15m", "eth-1h"...).
	MarketTypes map[string]MarketTypeConfig `yaml:"market_types"`
}

// MarketTypeConfig sobreescribe valores para un tipo de mercado.
type MarketTypeConfig struct {
	BaseSize        float64 `yaml:"base_size"`
	CooldownSeconds *int    `yaml:"cooldown_seconds"` // nil = usar el general
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	WSURL     string `yaml:"ws_url"`
}

// PaperConfig controla la simulación de fills.
type PaperConfig struct {
	Slippage      float64 `yaml:"slippage"`
	FillTolerance float64 `yaml:"fill_tolerance"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// HTTPConfig controla el servidor de estado y métricas.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta un documento YAML, aplica overrides de entorno y defaults
// y valida el resultado.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba los rangos de los parámetros de trading.
func (c *Config) Validate() error {
	t := c.Trading
	var errs []error
	if t.DataSource != "api" && t.DataSource != "ws" {
		errs = append(errs, fmt.Errorf("trading.data_source must be api or ws, got %q", t.DataSource))
	}
	if t.CostPerPairMax <= 0 || t.CostPerPairMax > 1.1 {
		errs = append(errs, fmt.Errorf("trading.cost_per_pair_max out of range: %.4f", t.CostPerPairMax))
	}
	if t.MinSidePrice >= t.MaxSidePrice || t.MaxSidePrice >= 1 {
		errs = append(errs, fmt.Errorf("trading.min_side_price/max_side_price invalid: %.4f/%.4f", t.MinSidePrice, t.MaxSidePrice))
	}
	if t.SizeMinRatio <= 0 || t.SizeMinRatio > 1 {
		errs = append(errs, fmt.Errorf("trading.size_min_ratio must be in (0,1], got %.4f", t.SizeMinRatio))
	}
	if *t.CooldownSeconds1h < 0 || *t.SizeReduceAfterSecs < 0 || *t.TrendThreshold < 0 {
		errs = append(errs, errors.New("trading.cooldown_seconds_1h, size_reduce_after_secs and trend_threshold must not be negative"))
	}
	if t.TrendMinSamples > t.TrendWindow {
		errs = append(errs, fmt.Errorf("trading.trend_min_samples (%d) exceeds trend_window (%d)", t.TrendMinSamples, t.TrendWindow))
	}
	for _, tf := range t.Timeframes {
		if tf != "15m" && tf != "1h" {
			errs = append(errs, fmt.Errorf("trading.timeframes: unsupported %q", tf))
		}
	}
	if len(t.Markets) == 0 {
		errs = append(errs, errors.New("trading.markets is empty"))
	}
	return errors.Join(errs...)
}

// CheckInterval devuelve la cadencia del feed por polling.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Trading.CheckIntervalMs) * time.Millisecond
}

// ClosureInterval devuelve cada cuánto se consulta el estado de los mercados.
func (c *Config) ClosureInterval() time.Duration {
	return time.Duration(c.Trading.ClosurePollIntervalSeconds) * time.Second
}

// DiscoveryInterval devuelve cada cuánto se buscan mercados nuevos.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.Trading.DiscoveryIntervalSeconds) * time.Second
}

// StrategyConfig construye los umbrales de las reglas.
func (c *Config) StrategyConfig() strategy.Config {
	t := c.Trading
	return strategy.Config{
		CostPerPairMax:   t.CostPerPairMax,
		EntryLegs:        t.EntryLegs,
		LockLegs:         t.LockLegs,
		ExpansionMaxBuys: t.ExpansionMaxBuys,
		MinSidePrice:     t.MinSidePrice,
		MaxSidePrice:     t.MaxSidePrice,
	}.WithDefaults()
}

// SizingConfig construye la política de tamaños.
func (c *Config) SizingConfig() sizing.Config {
	t := c.Trading
	bases := sizing.DefaultBaseSizes()
	for name, mt := range t.MarketTypes {
		if mt.BaseSize > 0 {
			bases[domain.MarketType(strings.ToLower(name))] = mt.BaseSize
		}
	}
	return sizing.Config{
		BaseSizes:        bases,
		DefaultBase:      sizing.DefaultBase,
		Override:         t.Shares,
		ReduceAfter:      time.Duration(*t.SizeReduceAfterSecs) * time.Second,
		MinRatio:         t.SizeMinRatio,
		MinShares:        t.SizeMinShares,
		MaxSharesPerSide: t.MaxSharesPerSide,
	}
}

// TrendConfig construye la configuración del detector de tendencia.
func (c *Config) TrendConfig() trend.Config {
	return trend.Config{
		Window:     c.Trading.TrendWindow,
		MinSamples: c.Trading.TrendMinSamples,
		Threshold:  *c.Trading.TrendThreshold,
	}
}

// EngineConfig construye los cooldowns por mercado. cooldown_seconds_1h aplica
// a todos los activos en 1h; market_types tiene prioridad.
func (c *Config) EngineConfig() engine.Config {
	t := c.Trading
	byType := make(map[domain.MarketType]time.Duration)
	for _, asset := range t.Markets {
		byType[domain.NewMarketType(asset, "1h")] = time.Duration(*t.CooldownSeconds1h) * time.Second
	}
	for name, mt := range t.MarketTypes {
		if mt.CooldownSeconds != nil {
			byType[domain.MarketType(strings.ToLower(name))] = time.Duration(*mt.CooldownSeconds) * time.Second
		}
	}
	return engine.Config{
		Cooldown:       time.Duration(t.CooldownSeconds) * time.Second,
		CooldownByType: byType,
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	t := &cfg.Trading
	if len(t.Markets) == 0 {
		t.Markets = []string{"btc"}
	}
	for i, m := range t.Markets {
		t.Markets[i] = strings.ToLower(strings.TrimSpace(m))
	}
	if len(t.Timeframes) == 0 {
		t.Timeframes = []string{"15m", "1h"}
	}
	if t.CheckIntervalMs <= 0 {
		t.CheckIntervalMs = 1000
	}
	if t.DataSource == "" {
		t.DataSource = "api"
	}
	if t.CostPerPairMax <= 0 {
		t.CostPerPairMax = strategy.DefaultCostPerPairMax
	}
	if t.MinSidePrice <= 0 {
		t.MinSidePrice = strategy.DefaultMinSidePrice
	}
	if t.MaxSidePrice <= 0 {
		t.MaxSidePrice = strategy.DefaultMaxSidePrice
	}
	if t.EntryLegs <= 0 {
		t.EntryLegs = strategy.DefaultEntryLegs
	}
	if t.LockLegs <= 0 {
		t.LockLegs = strategy.DefaultLockLegs
	}
	if t.ExpansionMaxBuys <= 0 {
		t.ExpansionMaxBuys = strategy.DefaultExpansionMaxBuys
	}
	if t.CooldownSeconds < 0 {
		t.CooldownSeconds = 0
	}
	if t.CooldownSeconds1h == nil {
		t.CooldownSeconds1h = ptr(45)
	}
	if t.SizeReduceAfterSecs == nil {
		t.SizeReduceAfterSecs = ptr(int(sizing.DefaultReduceAfter / time.Second))
	}
	if t.SizeMinRatio <= 0 {
		t.SizeMinRatio = sizing.DefaultMinRatio
	}
	if t.SizeMinShares <= 0 {
		t.SizeMinShares = sizing.DefaultMinShares
	}
	if t.TrendWindow <= 0 {
		t.TrendWindow = trend.DefaultWindow
	}
	if t.TrendMinSamples <= 0 {
		t.TrendMinSamples = trend.DefaultMinSamples
	}
	if t.TrendThreshold == nil {
		t.TrendThreshold = ptr(trend.DefaultThreshold)
	}
	if t.ClosurePollIntervalSeconds <= 0 {
		t.ClosurePollIntervalSeconds = 20
	}
	if t.DiscoveryIntervalSeconds <= 0 {
		t.DiscoveryIntervalSeconds = 30
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.WSURL == "" {
		cfg.API.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "updownbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func ptr[T any](v T) *T { return &v }
