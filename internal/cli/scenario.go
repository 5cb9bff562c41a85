package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spx-engine/internal/gate"
	"spx-engine/internal/market"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

// Scenario is a frozen market snapshot read from a YAML or JSON file. It
// stands in for every external provider so a decision can be replayed.
type Scenario struct {
	Now    time.Time `json:"now" yaml:"now"`
	UserID string    `json:"userId" yaml:"userId"`

	VIX              *float64              `json:"vix" yaml:"vix"`
	ATR14            *float64              `json:"atr14" yaml:"atr14"`
	CurrentPrice     *float64              `json:"currentPrice" yaml:"currentPrice"`
	SessionOpenPrice *float64              `json:"sessionOpenPrice" yaml:"sessionOpenPrice"`
	Regime           models.Regime         `json:"regime" yaml:"regime"`
	RegimeConfidence float64               `json:"regimeConfidence" yaml:"regimeConfidence"`
	Session          *market.SessionStatus `json:"session" yaml:"session"`
	GEX              *models.GEXLevels     `json:"gex" yaml:"gex"`
	PartialAtT1      *float64              `json:"partialAtT1" yaml:"partialAtT1"`

	Setups      []models.Setup              `json:"setups" yaml:"setups"`
	Bars        []models.Bar                `json:"bars" yaml:"bars"`
	Ticks       []models.Tick               `json:"ticks" yaml:"ticks"`
	Chains      []models.OptionsChain       `json:"chains" yaml:"chains"`
	Expirations []string                    `json:"expirations" yaml:"expirations"`
	IVForecast  *models.IVForecast          `json:"ivForecast" yaml:"ivForecast"`
	Events      []models.EconomicEvent      `json:"events" yaml:"events"`
	Articles    []models.NewsArticle        `json:"articles" yaml:"articles"`
	RiskContext *models.RiskContext         `json:"riskContext" yaml:"riskContext"`
	LiveStatus  *providers.LiveMarketStatus `json:"liveStatus" yaml:"liveStatus"`
}

// LoadScenario reads a scenario file. Files ending in .json are decoded as
// JSON, everything else as YAML.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	sc := &Scenario{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, sc)
	} else {
		err = yaml.Unmarshal(data, sc)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if sc.Now.IsZero() {
		sc.Now = time.Now()
	}
	return sc, nil
}

// validate rejects unknown enum values; they are authoring mistakes.
func (s *Scenario) validate() error {
	if s.Regime != "" {
		if _, err := models.ParseRegime(string(s.Regime)); err != nil {
			return err
		}
	}
	for i, setup := range s.Setups {
		if setup.ID == "" {
			return fmt.Errorf("setups[%d]: missing id", i)
		}
		if _, err := models.ParseSetupType(string(setup.Type)); err != nil {
			return fmt.Errorf("setups[%d]: %w", i, err)
		}
		if _, err := models.ParseSetupStatus(string(setup.Status)); err != nil {
			return fmt.Errorf("setups[%d]: %w", i, err)
		}
		if setup.Regime != "" {
			if _, err := models.ParseRegime(string(setup.Regime)); err != nil {
				return fmt.Errorf("setups[%d]: %w", i, err)
			}
		}
		if setup.Direction != models.DirectionBullish && setup.Direction != models.DirectionBearish {
			return fmt.Errorf("setups[%d]: direction %q must be bullish or bearish", i, setup.Direction)
		}
	}
	return nil
}

// Static returns a provider serving the scenario data.
func (s *Scenario) Static() *providers.Static {
	return &providers.Static{
		Setups:      s.Setups,
		Chains:      s.Chains,
		Expirations: s.Expirations,
		IV:          s.IVForecast,
		Events:      s.Events,
		Articles:    s.Articles,
		Bars:        s.Bars,
		Ticks:       s.Ticks,
		Risk:        s.RiskContext,
		Live:        s.LiveStatus,
	}
}

// GateInput returns the environment gate input. Missing values are left for
// the gate to fetch from the scenario providers.
func (s *Scenario) GateInput() gate.GateInput {
	return gate.GateInput{
		EvaluationDate:   s.Now,
		CurrentPrice:     s.CurrentPrice,
		SessionOpenPrice: s.SessionOpenPrice,
		ATR14:            s.ATR14,
		VixValue:         s.VIX,
		Bars:             s.Bars,
		Regime:           s.Regime,
		RegimeConfidence: s.RegimeConfidence,
		MarketSession:    s.Session,
	}
}

// Setup returns the setup with id, or the first setup when id is empty.
func (s *Scenario) Setup(id string) (*models.Setup, error) {
	for i := range s.Setups {
		if id == "" || s.Setups[i].ID == id {
			setup := s.Setups[i].Clone()
			return &setup, nil
		}
	}
	if id == "" {
		return nil, fmt.Errorf("scenario has no setups")
	}
	return nil, fmt.Errorf("setup %q not found in scenario", id)
}
