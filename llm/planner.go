package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.QueryPlanner = (*Planner)(nil)

const (
	// Prompts longer than this are condensed before planning.
	longPromptChars = 2000

	minQueries = 10
	maxQueries = 25
)

var techPatterns = compileAll(
	// web frameworks
	`\bFastAPI\b`, `\bDjango\b`, `\bFlask\b`, `\bVue\.?js\b`, `\bReact\b`, `\bAngular\b`,
	// databases
	`\bChromaDB\b`, `\bQdrant\b`, `\bPinecone\b`, `\bPostgreSQL\b`, `\bRedis\b`, `\bMongoDB\b`, `\bMySQL\b`,
	// AI/ML
	`\bWhisper\b`, `\bOllama\b`, `\bLlama\b`, `\bGPT\b`, `\bTTS\b`, `\bCoqui\b`, `\bElevenLabs\b`, `\bsentence-transformers?\b`,
	// telephony and audio
	`\bFreeSWITCH\b`, `\bAsterisk\b`, `\bWebRTC\b`, `\bSIP\b`, `\bVoIP\b`,
	// infrastructure
	`\bDocker\b`, `\bKubernetes\b`, `\bRabbitMQ\b`, `\bWebSocket\b`, `\bNginx\b`, `\bApache\b`,
)

var camelCaseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`)

// competitors is the static alternative map used when the model cannot
// name competitors.
var competitors = map[string][]string{
	"freeswitch": {"Jambonz", "Asterisk", "Kamailio", "OpenSIPS"},
	"whisper":    {"DeepSpeech", "Wav2Vec", "Vosk", "AssemblyAI"},
	"tts":        {"Bark", "VALL-E", "Tortoise-TTS", "MMS-TTS"},
	"fastapi":    {"Flask", "Django", "Quart", "Starlette"},
	"chromadb":   {"Qdrant", "Pinecone", "Weaviate", "Milvus"},
	"redis":      {"Memcached", "Dragonfly", "KeyDB", "Valkey"},
	"postgresql": {"MySQL", "MariaDB", "CockroachDB", "TimescaleDB"},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Planner turns a learning goal into web search queries.
type Planner struct {
	gen    ragkb.Generator
	logger *slog.Logger

	// Competitors appends queries about alternatives to each detected
	// technology.
	Competitors bool
}

// NewPlanner returns a Planner using gen.
func NewPlanner(gen ragkb.Generator, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{gen: gen, logger: logger}
}

// Plan returns a search strategy for prompt. It never fails: when the model
// is unavailable or answers badly, a fallback strategy is returned.
func (p *Planner) Plan(ctx context.Context, prompt string) ragkb.SearchStrategy {
	prompt = strings.TrimSpace(prompt)
	techs := ExtractTechnologies(prompt)
	condensed := Condense(prompt, techs)
	count := RecommendedQueryCount(len(techs))

	p.logger.Debug("planning search", "technologies", len(techs), "queries", count)

	out, err := p.gen.Generate(ctx, ragkb.GenerateRequest{
		System:      plannerSystemPrompt,
		Prompt:      BuildPlannerPrompt(condensed, count),
		Temperature: 0.3,
		MaxTokens:   1000,
		JSON:        true,
	})
	if err != nil {
		p.logger.Warn("search planning failed, using fallback queries", "err", err)
		return FallbackStrategy(prompt)
	}

	var strategy ragkb.SearchStrategy
	if err := DecodeJSON(out, &strategy); err != nil || len(strategy.Queries) == 0 {
		p.logger.Warn("search plan unusable, using fallback queries", "err", err)
		return FallbackStrategy(prompt)
	}

	if p.Competitors {
		extra := p.competitorQueries(ctx, techs)
		strategy.Queries = append(strategy.Queries, extra...)
		p.logger.Debug("added competitor queries", "count", len(extra))
	}
	return strategy
}

func (p *Planner) competitorQueries(ctx context.Context, techs []string) []string {
	if len(techs) == 0 {
		return nil
	}
	list := techs
	if len(list) > 10 {
		list = list[:10]
	}

	alternatives := make(map[string][]string)
	out, err := p.gen.Generate(ctx, ragkb.GenerateRequest{
		Prompt:      BuildCompetitorPrompt(list),
		Temperature: 0.2,
		MaxTokens:   300,
		JSON:        true,
	})
	if err == nil {
		err = DecodeJSON(out, &alternatives)
	}
	if err != nil || len(alternatives) == 0 {
		p.logger.Warn("competitor detection failed, using static map", "err", err)
		alternatives = StaticCompetitors(techs)
	}
	return CompetitorQueries(alternatives)
}

// ExtractTechnologies detects known technology names and CamelCase words,
// in order of first detection, without case-insensitive duplicates.
func ExtractTechnologies(text string) []string {
	var detected []string
	seen := make(map[string]bool)
	add := func(t string) {
		key := strings.ToLower(t)
		if !seen[key] {
			seen[key] = true
			detected = append(detected, t)
		}
	}
	for _, re := range techPatterns {
		for _, m := range re.FindAllString(text, -1) {
			add(m)
		}
	}
	for _, w := range camelCaseRe.FindAllString(text, -1) {
		if len(w) > 3 {
			add(w)
		}
	}
	return detected
}

// Condense shortens prompts over 2000 characters to the detected technology
// list, or to their head and tail when none were found.
func Condense(prompt string, techs []string) string {
	r := []rune(prompt)
	if len(r) <= longPromptChars {
		return prompt
	}
	if len(techs) > 0 {
		if len(techs) > 15 {
			techs = techs[:15]
		}
		return "Technologies: " + strings.Join(techs, ", ")
	}
	return string(r[:500]) + "..." + string(r[len(r)-200:])
}

// RecommendedQueryCount returns two queries per technology, clamped to
// [10, 25].
func RecommendedQueryCount(techs int) int {
	return max(minQueries, min(maxQueries, techs*2))
}

// FallbackStrategy builds a strategy without the model.
func FallbackStrategy(prompt string) ragkb.SearchStrategy {
	var keywords []string
	for _, w := range strings.Fields(prompt) {
		if len(w) > 3 {
			keywords = append(keywords, w)
		}
		if len(keywords) == 5 {
			break
		}
	}
	topics := keywords
	if len(topics) > 3 {
		topics = topics[:3]
	}
	return ragkb.SearchStrategy{
		Queries: []string{
			prompt + " tutorial",
			prompt + " documentation",
			prompt + " examples",
		},
		Topics:   topics,
		Keywords: keywords,
		Fallback: true,
	}
}

// StaticCompetitors maps each technology to up to two known alternatives.
func StaticCompetitors(techs []string) map[string][]string {
	out := make(map[string][]string)
	for _, tech := range techs {
		lower := strings.ToLower(tech)
		for _, key := range ragkb.SortedKeys(competitors) {
			if strings.Contains(lower, key) || strings.Contains(key, lower) {
				out[tech] = competitors[key][:2]
				break
			}
		}
	}
	return out
}

// CompetitorQueries expands up to two alternatives per technology into
// documentation, repository and video queries. Technologies are visited in
// sorted order.
func CompetitorQueries(alternatives map[string][]string) []string {
	var queries []string
	for _, tech := range ragkb.SortedKeys(alternatives) {
		alts := alternatives[tech]
		if len(alts) > 2 {
			alts = alts[:2]
		}
		for _, alt := range alts {
			queries = append(queries,
				alt+" official documentation",
				alt+" GitHub repository",
				alt+" tutorial YouTube",
			)
		}
	}
	return queries
}

const plannerSystemPrompt = `You are a search strategy generator for a retrieval system.
Analyze the user's request and generate effective web search queries to find learning resources.

Extract every technical component, framework, library, database and tool mentioned.
For each component generate at least one channel query, one long-form course query
and one documentation or GitHub query.

Mix query types in these proportions:
- 70% YouTube content: channels first, then masterclasses and full courses, then playlists, then single videos
- 20% official documentation
- 10% GitHub repositories

Return only a JSON object:
{
    "search_queries": ["query 1", "query 2"],
    "topics": ["topic 1", "topic 2"],
    "keywords": ["keyword 1", "keyword 2"]
}`

// BuildPlannerPrompt returns the user prompt asking for count queries.
func BuildPlannerPrompt(request string, count int) string {
	return fmt.Sprintf(`User request: %q

Extract all technical components mentioned above, then generate %d diverse search queries
covering every component. At least %d queries must target YouTube, with %d or more
channel queries.

Generate exactly %d queries now.`, request, count, count*70/100, count*30/100, count)
}

// BuildCompetitorPrompt asks for alternatives to each technology.
func BuildCompetitorPrompt(techs []string) string {
	return fmt.Sprintf(`For these technologies: %s

List 2-3 main competitors or alternatives for each technology.

Return only a JSON object mapping each technology to its alternatives:
{
    "FreeSWITCH": ["Jambonz", "Asterisk"],
    "Whisper": ["DeepSpeech", "Wav2Vec"]
}`, strings.Join(techs, ", "))
}
