package fedsearch

import (
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// Wire types shared with the server.
type (
	Key         = query.Key
	Request     = domsearch.Request
	Response    = domsearch.Response
	TableResult = domsearch.TableResult
	Row         = domsearch.Row
	Locale      = domsearch.Locale
	Table       = table.Settings
	Column      = table.Column
	DocRef      = docref.DocRef
	Expression  = expression.Item
	Condition   = expression.Condition
	Value       = val.Val

	// MatchRequest evaluates an expression against records without searching.
	MatchRequest = searchuc.MatchRequest
)

// Term conditions.
const (
	Equals               = expression.Equals
	Contains             = expression.Contains
	In                   = expression.In
	InDictionary         = expression.InDictionary
	InFolder             = expression.InFolder
	IsDocRef             = expression.IsDocRef
	IsNull               = expression.IsNull
	IsNotNull            = expression.IsNotNull
	Between              = expression.Between
	GreaterThan          = expression.GreaterThan
	GreaterThanOrEqualTo = expression.GreaterThanOrEqualTo
	LessThan             = expression.LessThan
	LessThanOrEqualTo    = expression.LessThanOrEqualTo
	MatchesRegex         = expression.MatchesRegex
)

// Table aggregate functions.
const (
	Count   = table.FuncCount
	Sum     = table.FuncSum
	Min     = table.FuncMin
	Max     = table.FuncMax
	Average = table.FuncAverage
	First   = table.FuncFirst
)

// Expression builders.
var (
	And     = expression.AndOf
	Or      = expression.OrOf
	Not     = expression.NotOf
	Term    = expression.NewTerm
	RefTerm = expression.NewDocRefTerm
)

// DataSource references a data source by uuid.
func DataSource(uuid string) DocRef { return DocRef{Type: docref.TypeDataSource, UUID: uuid} }

// Pipeline references an extraction pipeline by uuid.
func Pipeline(uuid string) DocRef { return DocRef{Type: docref.TypePipeline, UUID: uuid} }

// Dictionary references a word list by uuid.
func Dictionary(uuid string) DocRef { return DocRef{Type: docref.TypeDictionary, UUID: uuid} }

// HealthStatus represents the health of the node answering the call.
type HealthStatus struct {
	Status       string            `json:"status"` // "ok", "degraded", "error"
	Node         string            `json:"node"`
	RunningTasks int               `json:"runningTasks"`
	Checks       map[string]string `json:"checks"`
}
