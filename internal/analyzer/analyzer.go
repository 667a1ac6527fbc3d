package analyzer

import (
	"strings"

	"decoynet/pkg/models"
)

const (
	phaseRiskIncrement     = 10
	dangerousRiskIncrement = 50
	maxRisk                = 100
)

// Technique records which phase a command matched and on what pattern.
type Technique struct {
	Phase       Phase  `json:"phase"`
	Description string `json:"description"`
	Pattern     string `json:"matched_pattern"`
}

// CommandAnalysis is the result of analyzing a single command.
type CommandAnalysis struct {
	Command      string          `json:"command"`
	AttackPhases []Phase         `json:"attack_phases"`
	Techniques   []Technique     `json:"techniques"`
	RiskScore    int             `json:"risk_score"`
	IsDangerous  bool            `json:"is_dangerous"`
	Severity     models.Severity `json:"severity"`
}

// SessionAnalysis aggregates phase coverage across a command sequence.
type SessionAnalysis struct {
	TotalCommands  int               `json:"total_commands"`
	UniquePhases   []Phase           `json:"unique_phases"`
	AverageRisk    int               `json:"average_risk"`
	Sophistication string            `json:"attack_sophistication"`
	KillChain      []Phase           `json:"kill_chain_progress"`
	ThreatLevel    string            `json:"threat_level"`
	Analyses       []CommandAnalysis `json:"analyses,omitempty"`
}

// Statistics summarizes pattern hits over a set of commands.
type Statistics struct {
	TotalAnalyzed     int           `json:"total_analyzed"`
	DangerousCommands int           `json:"dangerous_commands"`
	HighRiskCommands  int           `json:"high_risk_commands"`
	PhaseDistribution map[Phase]int `json:"phase_distribution"`
	AverageRiskScore  float64       `json:"average_risk_score"`
}

// Analyzer classifies attacker commands against a compiled rule table.
// It is stateless and safe for concurrent use.
type Analyzer struct {
	rules *RuleSet
}

// New creates an analyzer over the given rule set (nil uses the built-in
// table).
func New(rules *RuleSet) *Analyzer {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Analyzer{rules: rules}
}

// AnalyzeCommand tests one command against every phase pattern table. Each
// matched phase adds a fixed risk increment, a dangerous-pattern hit adds a
// larger one; risk is clamped to [0,100].
func (a *Analyzer) AnalyzeCommand(command string) CommandAnalysis {
	out := CommandAnalysis{Command: command, Severity: models.SeverityLow}
	trimmed := strings.ToLower(strings.TrimSpace(command))
	if trimmed == "" {
		return out
	}

	risk := 0
	for _, cp := range a.rules.phases {
		for _, re := range cp.patterns {
			if !re.MatchString(trimmed) {
				continue
			}
			out.AttackPhases = append(out.AttackPhases, cp.phase)
			out.Techniques = append(out.Techniques, Technique{
				Phase:       cp.phase,
				Description: cp.description,
				Pattern:     re.String(),
			})
			risk += phaseRiskIncrement
			break // count each phase once per command
		}
	}

	for _, re := range a.rules.dangerous {
		if re.MatchString(trimmed) {
			out.IsDangerous = true
			risk += dangerousRiskIncrement
			break
		}
	}

	if risk > maxRisk {
		risk = maxRisk
	}
	out.RiskScore = risk
	out.Severity = severityFor(risk, len(out.AttackPhases))
	return out
}

// AnalyzeSession aggregates analysis over an ordered command sequence and
// derives kill-chain progress and a sophistication tier.
func (a *Analyzer) AnalyzeSession(commands []string) SessionAnalysis {
	out := SessionAnalysis{
		Sophistication: "BASIC",
		ThreatLevel:    "LOW",
	}
	if len(commands) == 0 {
		return out
	}

	seen := make(map[Phase]struct{})
	totalRisk := 0
	for _, cmd := range commands {
		analysis := a.AnalyzeCommand(cmd)
		out.Analyses = append(out.Analyses, analysis)
		totalRisk += analysis.RiskScore
		for _, p := range analysis.AttackPhases {
			seen[p] = struct{}{}
		}
	}

	out.TotalCommands = len(commands)
	avg := float64(totalRisk) / float64(len(commands))
	out.AverageRisk = int(avg + 0.5)

	for _, p := range KillChainOrder {
		if _, ok := seen[p]; ok {
			out.KillChain = append(out.KillChain, p)
			out.UniquePhases = append(out.UniquePhases, p)
		}
	}

	out.Sophistication = sophisticationFor(len(seen), avg)
	out.ThreatLevel = threatLevelFor(avg, len(seen))
	return out
}

// Stats summarizes pattern hits over a command set.
func (a *Analyzer) Stats(commands []string) Statistics {
	st := Statistics{PhaseDistribution: make(map[Phase]int)}
	if len(commands) == 0 {
		return st
	}
	total := 0
	for _, cmd := range commands {
		analysis := a.AnalyzeCommand(cmd)
		st.TotalAnalyzed++
		total += analysis.RiskScore
		if analysis.IsDangerous {
			st.DangerousCommands++
		}
		if analysis.RiskScore >= 70 {
			st.HighRiskCommands++
		}
		for _, p := range analysis.AttackPhases {
			st.PhaseDistribution[p]++
		}
	}
	st.AverageRiskScore = float64(total) / float64(len(commands))
	return st
}

func severityFor(risk, phaseCount int) models.Severity {
	switch {
	case risk >= 70 || phaseCount >= 4:
		return models.SeverityHigh
	case risk >= 40 || phaseCount >= 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func sophisticationFor(uniquePhases int, averageRisk float64) string {
	switch {
	case uniquePhases >= 5 && averageRisk >= 50:
		return "ADVANCED"
	case uniquePhases >= 3 && averageRisk >= 30:
		return "INTERMEDIATE"
	default:
		return "BASIC"
	}
}

func threatLevelFor(averageRisk float64, phaseCount int) string {
	score := averageRisk*0.7 + float64(phaseCount)*5
	switch {
	case score >= 70:
		return "CRITICAL"
	case score >= 50:
		return "HIGH"
	case score >= 30:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
