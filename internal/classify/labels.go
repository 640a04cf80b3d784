package classify

// DefaultCategories are the support request categories the classifier
// chooses from.
var DefaultCategories = []string{
	"ACCOUNT",
	"CANCEL",
	"CONTACT",
	"DELIVERY",
	"FEEDBACK",
	"INVOICE",
	"ORDER",
	"PAYMENT",
	"REFUND",
	"SHIPPING",
	"SUBSCRIPTION",
}

// Sentiment labels.
const (
	Positive = "positive"
	Neutral  = "neutral"
	Negative = "negative"
)

// SentimentLabels lists the sentiment labels in tie-break order.
var SentimentLabels = []string{Negative, Neutral, Positive}

// DefaultConfidenceFloor is the sentiment confidence below which the label
// is reported as neutral.
const DefaultConfidenceFloor = 0.65
