package models

// Request bodies of the recipe API. Panels carry NaN as null; `default`
// tags are applied after binding and before validation.

type FactorsEMRequest struct {
	Panel   *Panel  `json:"panel" validate:"required"`
	Kmax    int     `json:"kmax" validate:"gte=0,lte=100"`
	P       *int    `json:"p" default:"2" validate:"omitempty,gte=0,lte=3"`
	MaxIter int     `json:"max_iter" default:"50" validate:"gte=1,lte=1000"`
	Tol     float64 `json:"tol" default:"1e-12" validate:"gt=0"`
}

type FactorsSelectRequest struct {
	Panel *Panel `json:"panel" validate:"required"`
	Kmax  int    `json:"kmax" validate:"gte=0,lte=100"`
	P     int    `json:"p" default:"2" validate:"oneof=1 2 3"`
}

type PanelRequest struct {
	Panel *Panel `json:"panel" validate:"required"`
	Kmax  int    `json:"kmax" validate:"gte=0"`
}

type ImputeEMRequest struct {
	Panel        *Panel  `json:"panel" validate:"required"`
	AddIntercept bool    `json:"add_intercept"`
	Tol          float64 `json:"tol" default:"1e-12" validate:"gt=0"`
	MaxIter      int     `json:"max_iter" default:"200" validate:"gte=1,lte=5000"`
}

type CorrelationRequest struct {
	X Values `json:"x" validate:"required,min=2"`
	Y Values `json:"y" validate:"omitempty,min=2"`
}

type OutliersRequest struct {
	Panel  *Panel `json:"panel" validate:"required"`
	Method string `json:"method" default:"tukey" validate:"required"`
}

type WinsorizeRequest struct {
	Panel *Panel  `json:"panel" validate:"required"`
	Lower float64 `json:"lower" default:"0.025" validate:"gte=0,lt=1"`
	Upper float64 `json:"upper" default:"0.975" validate:"gt=0,lte=1,gtfield=Lower"`
}

type FractilesRequest struct {
	Values    Values    `json:"values" validate:"required,min=1"`
	Pct       []float64 `json:"pct" validate:"required,min=1,dive,gte=0,lte=100"`
	Keys      Values    `json:"keys"`
	Ascending bool      `json:"ascending"`
}

type WeightedAverageRequest struct {
	Panel   *Panel    `json:"panel" validate:"required"`
	Weights []float64 `json:"weights"`
}

type RegressionRequest struct {
	X           *Panel `json:"x" validate:"required"`
	Y           *Panel `json:"y" validate:"required"`
	AddConstant *bool  `json:"add_constant" default:"true"`
	StdRes      bool   `json:"stdres"`
}

type FStatsRequest struct {
	X    Values  `json:"x" validate:"required,min=3"`
	Tail float64 `json:"tail" default:"0.15" validate:"gt=0,lt=0.5"`
}

type ADFRequest struct {
	X       Values `json:"x" validate:"required,min=10"`
	MaxLag  int    `json:"max_lag" validate:"gte=0"`
	AutoLag string `json:"autolag" default:"AIC" validate:"oneof=AIC BIC t-stat none"`
}

type IntegrationOrderRequest struct {
	X        Values  `json:"x" validate:"required,min=10"`
	MaxOrder int     `json:"max_order" default:"5" validate:"gte=1,lte=10"`
	PValue   float64 `json:"pvalue" default:"0.05" validate:"gt=0,lt=1"`
	MaxLag   int     `json:"max_lag" validate:"gte=0"`
	AutoLag  string  `json:"autolag" default:"AIC" validate:"oneof=AIC BIC t-stat none"`
}

type RiskMeasuresRequest struct {
	X     Values  `json:"x" validate:"required,min=1"`
	Alpha float64 `json:"alpha" default:"0.95" validate:"gt=0,lt=1"`
}

type KupiecRequest struct {
	S     int     `json:"s" validate:"gte=0"`
	N     int     `json:"n" validate:"gt=0,gtefield=S"`
	Level float64 `json:"level" default:"0.95" validate:"gt=0,lt=1"`
}

type POFRequest struct {
	X     Values  `json:"x" validate:"required,min=1"`
	Pred  Values  `json:"pred" validate:"required,min=1"`
	Level float64 `json:"level" default:"0.95" validate:"gt=0,lt=1"`
}

type DrawdownRequest struct {
	X            Values `json:"x" validate:"required,min=1"`
	Dates        []int  `json:"dates"`
	IsPriceLevel bool   `json:"is_price_level"`
}

type VolatilityRequest struct {
	Method string `json:"method" default:"parkinson" validate:"oneof=parkinson garman-klass rogers-satchell"`
	Open   *Panel `json:"open"`
	High   *Panel `json:"high" validate:"required"`
	Low    *Panel `json:"low" validate:"required"`
	Close  *Panel `json:"close"`
	FFill  bool   `json:"ffill"`
}

type HalflifeRequest struct {
	Alpha float64 `json:"alpha" query:"alpha"`
}

type MinVarianceRequest struct {
	Sigma *Panel `json:"sigma" validate:"required"`
}

type PresentValueRequest struct {
	Flow float64 `json:"flow"`
	N    float64 `json:"n" validate:"gte=0"`
	Spot float64 `json:"spot" validate:"gt=-1"`
}

type CashFlowRequest struct {
	Flows []float64 `json:"flows" validate:"required,min=1"`
	Spot  []float64 `json:"spot" validate:"required,min=1"`
	First *float64  `json:"first" default:"1"`
}

type ForwardRequest struct {
	Spot []float64 `json:"spot" validate:"required,min=1"`
	Base int       `json:"base" validate:"gte=0"`
}

type BootstrapRequest struct {
	YTM []float64 `json:"ytm" validate:"required,min=1"`
	M   int       `json:"m" default:"1" validate:"gte=1,lte=12"`
}

type DurationRequest struct {
	Nominal float64  `json:"nominal" validate:"gte=0"`
	N       int      `json:"n" validate:"gte=1"`
	Face    float64  `json:"face" default:"1" validate:"gt=0"`
	M       int      `json:"m" default:"1" validate:"gte=1,lte=12"`
	First   *float64 `json:"first"`
}

// ReleaseOffset mirrors alfred.Offset for request bodies.
type ReleaseOffset struct {
	Months int `json:"months"`
	Days   int `json:"days"`
}

// VintageQuery selects observations, either inline or by a stored series,
// and how one release per period is kept.
type VintageQuery struct {
	SeriesID      string         `json:"series_id"`
	Observations  []Observation  `json:"observations" validate:"required_without=SeriesID,dive"`
	Vintage       int            `json:"vintage" validate:"gte=0"`
	Release       int            `json:"release" validate:"gte=0"`
	ReleaseOffset *ReleaseOffset `json:"release_offset"`
	Start         int            `json:"start" validate:"gte=0"`
	End           int            `json:"end" validate:"gte=0"`
	Freq          string         `json:"freq" validate:"omitempty,oneof=A S Q M B W"`
	Backfill      bool           `json:"backfill"`
}

type VintageTransformRequest struct {
	VintageQuery
	Units string `json:"units" default:"lin" validate:"required"`
}

type VintageSpansRequest struct {
	VintageQuery
	Threshold float64 `json:"threshold"`
}

type PutObservationsRequest struct {
	Observations []Observation `json:"observations" validate:"required,min=1,dive"`
}

type FactorsEMJobRequest struct {
	Panel *Panel `json:"panel" validate:"required_unless=FredMD true"`
	// FredMD loads and transforms a FRED-MD/QD vintage (YYYYMM, 0 for the
	// current file) instead of taking a panel.
	FredMD  bool    `json:"fredmd"`
	Vintage int     `json:"vintage" validate:"gte=0"`
	Kind    string  `json:"kind" default:"md" validate:"oneof=md qd"`
	Kmax    int     `json:"kmax" validate:"gte=0,lte=100"`
	P       *int    `json:"p" default:"2" validate:"omitempty,gte=0,lte=3"`
	MaxIter int     `json:"max_iter" default:"50" validate:"gte=1,lte=1000"`
	Tol     float64 `json:"tol" default:"1e-12" validate:"gt=0"`
}
