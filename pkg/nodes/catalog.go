package nodes

import "github.com/aretw0/promptflow/pkg/graph"

// Serialized node_type names of the catalog.
const (
	TypeInput                  = "InputNode"
	TypeFileInput              = "FileInput"
	TypeJSONFileInput          = "JSONFileInput"
	TypeFileOutput             = "FileOutput"
	TypeJSONFileOutput         = "JSONFileOutput"
	TypePrompt                 = "PromptNode"
	TypeFunc                   = "FuncNode"
	TypeAssert                 = "AssertNode"
	TypeLogging                = "LoggingNode"
	TypeDate                   = "DateNode"
	TypeRandom                 = "RandomNode"
	TypeRegex                  = "RegexNode"
	TypeTag                    = "TagNode"
	TypeHistory                = "HistoryNode"
	TypeManualHistory          = "ManualHistoryNode"
	TypeWindowedHistory        = "WindowedHistoryNode"
	TypeDynamicWindowedHistory = "DynamicWindowedHistoryNode"
	TypeEnv                    = "EnvNode"
	TypeManualEnv              = "ManualEnvNode"
	TypeJSON                   = "JSONNode"
	TypeJsonerizer             = "JsonerizerNode"
	TypeHTTP                   = "HttpNode"
	TypeJSONRequest            = "JSONRequestNode"
	TypeScrape                 = "ScrapeNode"
	TypeDummyLLM               = "DummyLLMNode"
	TypeOpenAI                 = "OpenAINode"
	TypeSQLiteQuery            = "SQLiteQueryNode"
	TypePGQuery                = "PGQueryNode"
)

var catalog = map[string]Constructor{
	TypeInput:                  func(*Services) graph.Behavior { return NewInputNode() },
	TypeFileInput:              func(*Services) graph.Behavior { return NewFileInput() },
	TypeJSONFileInput:          func(*Services) graph.Behavior { return NewJSONFileInput() },
	TypeFileOutput:             func(*Services) graph.Behavior { return NewFileOutput() },
	TypeJSONFileOutput:         func(*Services) graph.Behavior { return NewJSONFileOutput() },
	TypePrompt:                 func(*Services) graph.Behavior { return NewPromptNode() },
	TypeFunc:                   func(*Services) graph.Behavior { return NewFuncNode() },
	TypeAssert:                 func(*Services) graph.Behavior { return NewAssertNode() },
	TypeLogging:                func(svc *Services) graph.Behavior { return NewLoggingNode(svc) },
	TypeDate:                   func(svc *Services) graph.Behavior { return NewDateNode(svc) },
	TypeRandom:                 func(svc *Services) graph.Behavior { return NewRandomNode(svc) },
	TypeRegex:                  func(*Services) graph.Behavior { return NewRegexNode() },
	TypeTag:                    func(*Services) graph.Behavior { return NewTagNode() },
	TypeHistory:                func(*Services) graph.Behavior { return NewHistoryNode() },
	TypeManualHistory:          func(*Services) graph.Behavior { return NewManualHistoryNode() },
	TypeWindowedHistory:        func(svc *Services) graph.Behavior { return NewWindowedHistoryNode(svc) },
	TypeDynamicWindowedHistory: func(*Services) graph.Behavior { return NewDynamicWindowedHistoryNode() },
	TypeEnv:                    func(*Services) graph.Behavior { return NewEnvNode() },
	TypeManualEnv:              func(*Services) graph.Behavior { return NewManualEnvNode() },
	TypeJSON:                   func(*Services) graph.Behavior { return NewJSONNode() },
	TypeJsonerizer:             func(*Services) graph.Behavior { return NewJsonerizerNode() },
	TypeHTTP:                   func(svc *Services) graph.Behavior { return NewHTTPNode(svc) },
	TypeJSONRequest:            func(svc *Services) graph.Behavior { return NewJSONRequestNode(svc) },
	TypeScrape:                 func(svc *Services) graph.Behavior { return NewScrapeNode(svc) },
	TypeDummyLLM:               func(*Services) graph.Behavior { return NewDummyLLMNode() },
	TypeOpenAI:                 func(svc *Services) graph.Behavior { return NewOpenAINode(svc) },
	TypeSQLiteQuery:            func(*Services) graph.Behavior { return NewSQLiteQueryNode() },
	TypePGQuery:                func(*Services) graph.Behavior { return NewPGQueryNode() },
}
