package evaluation

// DefaultDataset is a small labeled sample of meeting transcript lines.
func DefaultDataset() *Dataset {
	return &Dataset{Items: []DatasetItem{
		{Text: "What is the capital of France?", IsQuestion: true, Type: "factual"},
		{Text: "How many people joined the call?", IsQuestion: true, Type: "factual"},
		{Text: "How do I reset my password?", IsQuestion: true, Type: "procedural"},
		{Text: "Why is the build failing?", IsQuestion: true, Type: "causal"},
		{Text: "Is the deployment finished?", IsQuestion: true, Type: "confirmatory"},
		{Text: "What if we move the launch to Friday?", IsQuestion: true, Type: "hypothetical"},
		{Text: "Which option is better for us", IsQuestion: true, Type: "comparative"},
		{Text: "Could you explain the new process", IsQuestion: true, Type: "procedural"},
		{Text: "and what about Germany", IsQuestion: true, UseContext: true},
		{Text: "The sky is blue.", IsQuestion: false},
		{Text: "Let's move on to the next item.", IsQuestion: false},
		{Text: "I sent the report yesterday.", IsQuestion: false},
		{Text: "Thanks everyone for joining.", IsQuestion: false},
		{Text: "We shipped version two last week.", IsQuestion: false},
	}}
}
