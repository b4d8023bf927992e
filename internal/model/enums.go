package model

// Source identifies the external platform a raw item was collected from.
type Source string

const (
	SourceReddit        Source = "reddit"
	SourceHackerNews    Source = "hackernews"
	SourceIndieHackers  Source = "indiehackers"
	SourceAppStore      Source = "appstore"
	SourceStackExchange Source = "stackexchange"
	SourceYouTube       Source = "youtube"
)

// ValidSources lists every recognized source.
var ValidSources = []Source{
	SourceReddit, SourceHackerNews, SourceIndieHackers,
	SourceAppStore, SourceStackExchange, SourceYouTube,
}

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	for _, v := range ValidSources {
		if s == v {
			return true
		}
	}
	return false
}

// ItemStatus is the terminal processing state of a raw item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemClassified ItemStatus = "classified"
	ItemNotPain    ItemStatus = "not_pain"
	ItemFailed     ItemStatus = "failed"
)

// Processed reports whether the item has reached a terminal state and must
// not be sent to the classifier again.
func (s ItemStatus) Processed() bool {
	return s == ItemClassified || s == ItemNotPain || s == ItemFailed
}

// Frequency describes how often a pain occurs.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyRare    Frequency = "rare"
)

// ImpactType describes the dominant kind of damage a pain causes.
type ImpactType string

const (
	ImpactTime   ImpactType = "time"
	ImpactMoney  ImpactType = "money"
	ImpactStress ImpactType = "stress"
	ImpactGrowth ImpactType = "growth"
)

// WTP is the willingness-to-pay signal strength.
type WTP string

const (
	WTPNone   WTP = "none"
	WTPLow    WTP = "low"
	WTPMedium WTP = "medium"
	WTPHigh   WTP = "high"
)

// Complexity estimates how hard a software solution would be to build.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// MarketSize is the deep analyzer's market estimate.
type MarketSize string

const (
	MarketSmall  MarketSize = "small"
	MarketMedium MarketSize = "medium"
	MarketLarge  MarketSize = "large"
)

// Verdict is the deep analyzer's go/no-go recommendation.
type Verdict string

const (
	VerdictGo    Verdict = "go"
	VerdictMaybe Verdict = "maybe"
	VerdictNoGo  Verdict = "no_go"
)

// RunStatus is the lifecycle state of a collection run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPartial   RunStatus = "partial"
)

func validFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyRare:
		return true
	}
	return false
}

func validImpactType(i ImpactType) bool {
	switch i {
	case ImpactTime, ImpactMoney, ImpactStress, ImpactGrowth:
		return true
	}
	return false
}

func validWTP(w WTP) bool {
	switch w {
	case WTPNone, WTPLow, WTPMedium, WTPHigh:
		return true
	}
	return false
}

func validComplexity(c Complexity) bool {
	switch c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
		return true
	}
	return false
}

func validMarketSize(m MarketSize) bool {
	switch m {
	case MarketSmall, MarketMedium, MarketLarge:
		return true
	}
	return false
}

func validVerdict(v Verdict) bool {
	switch v {
	case VerdictGo, VerdictMaybe, VerdictNoGo:
		return true
	}
	return false
}
