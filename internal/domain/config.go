package domain

import "time"

// Config holds the complete Veritas service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing-store selection
	Tier Tier `json:"tier"`

	// Engine holds the analysis thresholds, weights, and keyword sets.
	Engine EngineConfig `json:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// RateLimitPerMinute caps analyze calls per tenant. Zero disables.
	RateLimitPerMinute int `json:"rateLimitPerMinute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// EngineConfig bundles the fixed, versioned constants the engine runs
// on. It is immutable once constructed and passed explicitly so tests
// and tenants can run with isolated configurations.
type EngineConfig struct {
	Metrics MetricsConfig `json:"metrics"`
	Score   ScoreConfig   `json:"score"`
	Alerts  AlertConfig   `json:"alerts"`
}

// MetricsConfig holds the MetricsEngine constants.
type MetricsConfig struct {
	// NSFKeywords are matched case-insensitively inside descriptions.
	NSFKeywords []string `json:"nsfKeywords"`

	// IncomeKeywords gate the stricter income filter.
	IncomeKeywords []string `json:"incomeKeywords"`

	// StrictIncomeFilter requires a keyword match for a deposit to count
	// as income. Off by default; the amount floor always applies.
	StrictIncomeFilter bool `json:"strictIncomeFilter"`

	// IncomeMinimum is the floor below which a credit is not income.
	IncomeMinimum float64 `json:"incomeMinimum"`

	// MaxPayIntervalDays discards implausible gaps between income
	// deposits before the stability statistics run.
	MaxPayIntervalDays int `json:"maxPayIntervalDays"`

	// PayCycleDays are the canonical pay cycles the proximity bonus
	// rewards.
	PayCycleDays []float64 `json:"payCycleDays"`

	// BusinessDepositKeywords / BusinessExpenseKeywords classify
	// business activity.
	BusinessDepositKeywords []string `json:"businessDepositKeywords"`
	BusinessExpenseKeywords []string `json:"businessExpenseKeywords"`

	// BusinessActivityMinimum is the matched-transaction count needed
	// before business activity counts as detected.
	BusinessActivityMinimum int `json:"businessActivityMinimum"`
}

// ScoreConfig holds the ScoreSynthesizer weights and caps.
type ScoreConfig struct {
	NSFPenalty float64 `json:"nsfPenalty"` // per NSF event
	NSFCap     float64 `json:"nsfCap"`     // max total NSF penalty

	// ReferenceBalance is the average daily balance worth the full
	// balance bonus.
	ReferenceBalance    float64 `json:"referenceBalance"`
	BalanceBonusCap     float64 `json:"balanceBonusCap"`
	ZeroBalancePenalty  float64 `json:"zeroBalancePenalty"`  // ADB <= 0
	NegativeMinPenalty  float64 `json:"negativeMinPenalty"`  // lowest balance < 0
	StabilityNeutral    float64 `json:"stabilityNeutral"`    // stability score contributing zero
	StabilityWeight     float64 `json:"stabilityWeight"`     // points per stability point off neutral
	VolumeBonusCap      float64 `json:"volumeBonusCap"`
	VolumeBonusPerTx    float64 `json:"volumeBonusPerTx"`
	BusinessBonusCap    float64 `json:"businessBonusCap"`
}

// AlertConfig holds the rule thresholds.
type AlertConfig struct {
	NSFAlertThreshold int     `json:"nsfAlertThreshold"`
	LowBalanceFloor   float64 `json:"lowBalanceFloor"`

	VelocityMedium   float64 `json:"velocityMedium"`
	VelocityHigh     float64 `json:"velocityHigh"`
	VelocityCritical float64 `json:"velocityCritical"`

	StabilityLow    float64 `json:"stabilityLow"`    // below -> LOW
	StabilityMedium float64 `json:"stabilityMedium"` // below -> MEDIUM
	StabilityHigh   float64 `json:"stabilityHigh"`   // below -> HIGH

	WithdrawalRatioHigh     float64 `json:"withdrawalRatioHigh"`
	WithdrawalRatioCritical float64 `json:"withdrawalRatioCritical"`

	LargeDepositAmount    float64 `json:"largeDepositAmount"`
	StructuringBandLower  float64 `json:"structuringBandLower"`
	StructuringBandUpper  float64 `json:"structuringBandUpper"`
	StructuringMinCount   int     `json:"structuringMinCount"`
	CashWithdrawalAmount  float64 `json:"cashWithdrawalAmount"`
	CashWithdrawalKeywords []string `json:"cashWithdrawalKeywords"`
	ATMKeywords           []string `json:"atmKeywords"`
	ATMUsageThreshold     int     `json:"atmUsageThreshold"`

	CreditRiskCriticalBelow float64 `json:"creditRiskCriticalBelow"`
	CreditRiskHighBelow     float64 `json:"creditRiskHighBelow"`
	CreditRiskMediumBelow   float64 `json:"creditRiskMediumBelow"`

	ComplianceVolume float64 `json:"complianceVolume"`

	MinTransactionHistory  int     `json:"minTransactionHistory"`
	NameSimilarityMinimum  float64 `json:"nameSimilarityMinimum"`

	RoundAmountShare   float64 `json:"roundAmountShare"`
	RoundAmountMinimum float64 `json:"roundAmountMinimum"`
	WeekendShare       float64 `json:"weekendShare"`

	DebtServiceMedium   float64 `json:"debtServiceMedium"`
	DebtServiceHigh     float64 `json:"debtServiceHigh"`
	DebtServiceCritical float64 `json:"debtServiceCritical"`
	AnnualInterestRate  float64 `json:"annualInterestRate"` // payment estimation

	HighRiskIndustries      []string `json:"highRiskIndustries"`
	CashIntensiveIndustries []string `json:"cashIntensiveIndustries"`

	NSFSpreadThreshold      int     `json:"nsfSpreadThreshold"`
	BalanceVarianceDeviation float64 `json:"balanceVarianceDeviation"`
	ConcentrationScoreBelow float64 `json:"concentrationScoreBelow"`

	RevenueDiscrepancyShare float64 `json:"revenueDiscrepancyShare"`
	NewBusinessMonths       int     `json:"newBusinessMonths"`
	StartDateSlackMonths    int     `json:"startDateSlackMonths"`
}

// DefaultEngineConfig returns the versioned default thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Metrics: MetricsConfig{
			NSFKeywords: []string{
				"nsf", "insufficient funds", "overdraft", "returned item",
				"chargeback", "dishonored", "returned check", "unpaid item",
			},
			IncomeKeywords: []string{
				"payroll", "salary", "direct deposit", "deposit", "wages",
				"income", "payment received", "invoice",
			},
			StrictIncomeFilter: false,
			IncomeMinimum:      100,
			MaxPayIntervalDays: 45,
			PayCycleDays:       []float64{7, 14, 15, 30, 31},
			BusinessDepositKeywords: []string{
				"invoice", "payment received", "pos", "square", "stripe",
				"paypal", "merchant", "shopify",
			},
			BusinessExpenseKeywords: []string{
				"payroll", "supplier", "inventory", "rent", "utilities",
				"insurance", "vendor", "wholesale",
			},
			BusinessActivityMinimum: 3,
		},
		Score: ScoreConfig{
			NSFPenalty:         30,
			NSFCap:             150,
			ReferenceBalance:   10000,
			BalanceBonusCap:    100,
			ZeroBalancePenalty: 100,
			NegativeMinPenalty: 50,
			StabilityNeutral:   50,
			StabilityWeight:    1.2,
			VolumeBonusCap:     20,
			VolumeBonusPerTx:   0.5,
			BusinessBonusCap:   30,
		},
		Alerts: AlertConfig{
			NSFAlertThreshold: 3,
			LowBalanceFloor:   500,

			VelocityMedium:   2.0,
			VelocityHigh:     3.5,
			VelocityCritical: 5.0,

			StabilityLow:    70,
			StabilityMedium: 55,
			StabilityHigh:   40,

			WithdrawalRatioHigh:     0.9,
			WithdrawalRatioCritical: 1.1,

			LargeDepositAmount:   10000,
			StructuringBandLower: 9000,
			StructuringBandUpper: 9999.99,
			StructuringMinCount:  2,
			CashWithdrawalAmount: 2000,
			CashWithdrawalKeywords: []string{
				"cash withdrawal", "atm withdrawal", "counter withdrawal", "cash",
			},
			ATMKeywords:       []string{"atm"},
			ATMUsageThreshold: 20,

			CreditRiskCriticalBelow: 500,
			CreditRiskHighBelow:     580,
			CreditRiskMediumBelow:   640,

			ComplianceVolume: 100000,

			MinTransactionHistory: 30,
			NameSimilarityMinimum: 0.8,

			RoundAmountShare:   0.30,
			RoundAmountMinimum: 1000,
			WeekendShare:       0.20,

			DebtServiceMedium:   0.4,
			DebtServiceHigh:     0.6,
			DebtServiceCritical: 0.8,
			AnnualInterestRate:  0.12,

			HighRiskIndustries: []string{
				"gambling", "casino", "cannabis", "crypto", "cryptocurrency",
				"adult entertainment", "firearms", "money services",
			},
			CashIntensiveIndustries: []string{
				"restaurant", "bar", "laundromat", "car wash", "convenience store",
				"vending", "nail salon", "parking",
			},

			NSFSpreadThreshold:       3,
			BalanceVarianceDeviation: 0.5,
			ConcentrationScoreBelow:  580,

			RevenueDiscrepancyShare: 0.20,
			NewBusinessMonths:       6,
			StartDateSlackMonths:    3,
		},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        30,
			WriteTimeout:       30,
			RateLimitPerMinute: 0,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./veritas.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "veritas",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "veritas",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
