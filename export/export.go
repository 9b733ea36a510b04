// Package export encodes simulation results as compact FlatBuffers summaries
// for clients that only need the headline numbers.
package export

import (
	"errors"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/export/summaryfb"
)

// ErrMalformed is returned when a buffer is not a valid summary.
var ErrMalformed = errors.New("malformed summary")

// StrategySummary is one strategy's final outcome.
type StrategySummary struct {
	Name                 string  `json:"name"`
	Agents               int     `json:"agents"`
	Score                float64 `json:"score"`
	SustainabilityImpact float64 `json:"sustainability_impact"`
	SocialWelfare        float64 `json:"social_welfare"`
	TotalResources       float64 `json:"total_resources"`
}

// Summary is the decoded form of a binary summary. Strategies are sorted by name.
type Summary struct {
	GameType     string            `json:"game_type"`
	Rounds       int               `json:"rounds"`
	FailedRounds int               `json:"failed_rounds"`
	Seed         int64             `json:"seed"`
	Error        string            `json:"error,omitempty"`
	FinalError   string            `json:"final_error,omitempty"`
	Strategies   []StrategySummary `json:"strategies"`
}

// Summarize extracts the headline numbers from res.
func Summarize(res *engine.Results) Summary {
	s := Summary{Strategies: []StrategySummary{}}
	if res == nil {
		return s
	}
	s.GameType = string(res.GameType)
	s.Rounds = len(res.Rounds)
	s.Error = res.Error
	s.FinalError = res.FinalStats.Error
	if res.Metadata != nil {
		s.Seed = res.Metadata.Seed
	}
	for _, rec := range res.Rounds {
		if rec.Error != "" {
			s.FailedRounds++
		}
	}

	names := make([]string, 0, len(res.FinalStats.Strategies))
	for name := range res.FinalStats.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out := res.FinalStats.Strategies[name]
		agents := 0
		if perf := res.StrategyPerformance[name]; perf != nil {
			agents = perf.Agents
		}
		s.Strategies = append(s.Strategies, StrategySummary{
			Name:                 name,
			Agents:               agents,
			Score:                out.Score,
			SustainabilityImpact: out.SustainabilityImpact,
			SocialWelfare:        out.SocialWelfare,
			TotalResources:       out.TotalResources,
		})
	}
	return s
}

// EncodeSummary serializes the summary of res.
func EncodeSummary(res *engine.Results) []byte {
	return Encode(Summarize(res))
}

// Encode serializes s.
func Encode(s Summary) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Strings and child tables must be created before the tables that use them.
	statOffsets := make([]flatbuffers.UOffsetT, len(s.Strategies))
	for i, st := range s.Strategies {
		name := builder.CreateString(st.Name)
		summaryfb.StrategyStatStart(builder)
		summaryfb.StrategyStatAddName(builder, name)
		summaryfb.StrategyStatAddAgents(builder, uint32(st.Agents))
		summaryfb.StrategyStatAddScore(builder, st.Score)
		summaryfb.StrategyStatAddSustainabilityImpact(builder, st.SustainabilityImpact)
		summaryfb.StrategyStatAddSocialWelfare(builder, st.SocialWelfare)
		summaryfb.StrategyStatAddTotalResources(builder, st.TotalResources)
		statOffsets[i] = summaryfb.StrategyStatEnd(builder)
	}

	summaryfb.ResultSummaryStartStrategiesVector(builder, len(statOffsets))
	// Add in reverse order (FlatBuffers convention)
	for i := len(statOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(statOffsets[i])
	}
	strategies := builder.EndVector(len(statOffsets))

	gameType := builder.CreateString(s.GameType)
	var errOffset, finalErrOffset flatbuffers.UOffsetT
	if s.Error != "" {
		errOffset = builder.CreateString(s.Error)
	}
	if s.FinalError != "" {
		finalErrOffset = builder.CreateString(s.FinalError)
	}

	summaryfb.ResultSummaryStart(builder)
	summaryfb.ResultSummaryAddGameType(builder, gameType)
	summaryfb.ResultSummaryAddRounds(builder, uint32(s.Rounds))
	summaryfb.ResultSummaryAddFailedRounds(builder, uint32(s.FailedRounds))
	summaryfb.ResultSummaryAddSeed(builder, s.Seed)
	if errOffset > 0 {
		summaryfb.ResultSummaryAddError(builder, errOffset)
	}
	if finalErrOffset > 0 {
		summaryfb.ResultSummaryAddFinalError(builder, finalErrOffset)
	}
	summaryfb.ResultSummaryAddStrategies(builder, strategies)
	builder.Finish(summaryfb.ResultSummaryEnd(builder))

	return builder.FinishedBytes()
}

// DecodeSummary parses a buffer produced by EncodeSummary.
func DecodeSummary(buf []byte) (s Summary, err error) {
	if len(buf) < 8 {
		return Summary{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}
	// The accessors index without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			s, err = Summary{}, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	root := summaryfb.GetRootAsResultSummary(buf, 0)
	s = Summary{
		GameType:     string(root.GameType()),
		Rounds:       int(root.Rounds()),
		FailedRounds: int(root.FailedRounds()),
		Seed:         root.Seed(),
		Error:        string(root.Error()),
		FinalError:   string(root.FinalError()),
		Strategies:   make([]StrategySummary, 0, root.StrategiesLength()),
	}
	stat := new(summaryfb.StrategyStat)
	for i := 0; i < root.StrategiesLength(); i++ {
		if !root.Strategies(stat, i) {
			continue
		}
		s.Strategies = append(s.Strategies, StrategySummary{
			Name:                 string(stat.Name()),
			Agents:               int(stat.Agents()),
			Score:                stat.Score(),
			SustainabilityImpact: stat.SustainabilityImpact(),
			SocialWelfare:        stat.SocialWelfare(),
			TotalResources:       stat.TotalResources(),
		})
	}
	return s, nil
}
