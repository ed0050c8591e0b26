package inference

// topicRule maps keyword hits to a detected topic. Rules are evaluated in
// order and the first matching rule wins; an optional issue is recorded
// alongside the topic.
type topicRule struct {
	Keywords   []string
	Topic      string
	Issue      string
	Confidence float64
}

// sentimentRule maps keyword hits to a sentiment label. Rules are evaluated
// in order and the last matching rule wins.
type sentimentRule struct {
	Keywords []string
	Label    string
}

// issueRule maps keyword hits in frame descriptions to an issue entry
type issueRule struct {
	Keywords []string
	Issue    string
}

// transcriptTopicRules cover speaker utterances on audio calls
var transcriptTopicRules = []topicRule{
	{
		Keywords:   []string{"login", "password", "access"},
		Topic:      "Account Access Issue",
		Issue:      "User cannot login",
		Confidence: 0.9,
	},
	{
		Keywords:   []string{"slow", "internet", "wifi"},
		Topic:      "Network Connectivity",
		Issue:      "Slow network connection",
		Confidence: 0.9,
	},
	{
		Keywords:   []string{"printer", "jam"},
		Topic:      "Hardware Malfunction",
		Confidence: 0.9,
	},
}

// frameTopicRules cover analyzer descriptions of captured screen frames
var frameTopicRules = []topicRule{
	{
		Keywords:   []string{"login", "credentials", "password"},
		Topic:      "Authentication & Access Issues",
		Confidence: 0.8,
	},
	{
		Keywords:   []string{"error", "503", "timeout"},
		Topic:      "System Errors & Connectivity",
		Confidence: 0.8,
	},
	{
		Keywords:   []string{"settings", "configuration"},
		Topic:      "Configuration & Settings",
		Confidence: 0.8,
	},
	{
		Keywords:   []string{"update", "install"},
		Topic:      "Software Updates & Installation",
		Confidence: 0.8,
	},
}

// frameIssueRules pull concrete issue descriptions out of frame signals
var frameIssueRules = []issueRule{
	{Keywords: []string{"timeout"}, Issue: "Network timeout error observed"},
	{Keywords: []string{"503"}, Issue: "HTTP 503 Service Unavailable"},
	{Keywords: []string{"update required"}, Issue: "Software update pending"},
	{Keywords: []string{"login page"}, Issue: "Login interface accessed"},
}

// sentimentRules are shared across signal kinds. The negative rule is
// listed last so a fragment carrying both polarities resolves negative.
var sentimentRules = []sentimentRule{
	{Keywords: []string{"thanks", "great", "working"}, Label: SentimentPositive},
	{Keywords: []string{"frustrated", "angry", "urgent", "broken"}, Label: SentimentNegative},
}

// frameCategoryRules back-fill a timeline category when the analyzer did
// not attach one to a frame signal
var frameCategoryRules = []struct {
	Keywords []string
	Category string
}{
	{Keywords: []string{"error", "503", "timeout", "failed"}, Category: CategoryError},
	{Keywords: []string{"entering", "typing", "input"}, Category: CategoryInput},
	{Keywords: []string{"navigating", "opening", "page"}, Category: CategoryNavigation},
}
