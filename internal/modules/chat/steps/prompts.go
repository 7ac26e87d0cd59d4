package steps

import (
	"fmt"
	"time"
)

const (
	MaxToolIterations  = 5
	ContextWindow      = 10
	ResponseMaxTokens  = 4000
	ResponseTemp       = 0.7
	ReasoningEffort    = "medium"
	reasoningEveryN    = 3
	contentEveryN      = 10
	heartbeatEvery     = 30 * time.Second
	systemDateLayout   = "02/01/2006"
	TitleModel         = "google/gemini-2.0-flash-lite-001"
	TitleMaxTokens     = 50
	TitleTemperature   = 0.3
	TitleMaxLen        = 30
	toolStatusExecuted = "\n\n🔍 Tools executed, generating response..."
	toolStatusUsing    = "\n\n🔍 Using tools: %s..."
)

const (
	MsgAccessDenied = "You don't have access to this model. Please sign in or select a different model."
	MsgEmptyReply   = "Sorry, I couldn't generate a response."
	MsgFailure      = "Sorry, I encountered an error while processing your request. Please try again."
)

func systemPrompt(now time.Time) string {
	return fmt.Sprintf("You are a helpful AI assistant for a platform called 'KieraChat' with access to web search and content extraction tools. "+
		"Use these tools when you need current information, recent news, or specific details from websites. "+
		"Do not ask for confirmation to use tools, just use them. "+
		"Always provide accurate, helpful, and well-sourced responses. "+
		"If you did not find the information you wanted with the first search, feel free to search again. "+
		"Remember that when accessing wikipedia articles, you should append '&action=raw', this gives you just the wikitext allowing you to skip any uneeded boilerplate HTML; "+
		"so for example if querying the https://en.wikipedia.org/w/index.php?title=Pet_door url, change it to https://en.wikipedia.org/w/index.php?title=Pet_door&action=raw. "+
		"The date is %s.", now.Format(systemDateLayout))
}

func titlePrompt(userMessage string) string {
	return "Generate a summary title for this user request, ensuring it is below 30 characters, is entirely in plain text and uses no markdown and summarises the request in ~2-5 words: " + userMessage
}
