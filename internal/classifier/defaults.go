package classifier

// DefaultExploreKeywords seeds the "Explore" intent keyword set: requests
// to survey or summarise rather than answer one question.
var DefaultExploreKeywords = []string{
	"overview", "summarize", "summarise", "survey", "explore", "browse",
	"what happened", "catch me up", "walk through", "everything about",
	"all the", "history of", "recurring", "topics have",
}

// DefaultAnswerKeywords seeds the "Answer" intent keyword set: a direct
// question expecting a specific fact or value back.
var DefaultAnswerKeywords = []string{
	"what is", "what was", "why", "how do", "how did", "explain",
	"did we", "is it", "was it", "should", "can we",
}

// DefaultLocateKeywords seeds the "Locate" intent keyword set: requests
// to find a specific prior artifact (a message, a decision, a file).
var DefaultLocateKeywords = []string{
	"find", "where", "locate", "which message", "that time", "the commit",
	"the file", "the decision", "pointed to", "mentioned", "error message",
	"exact error",
}
