// ABOUTME: Fixed reply texts for the pipeline's short-circuit and failure paths
// ABOUTME: Callers always get one of these when generation is skipped or fails
package companion

const (
	listeningReply = "I'm still listening! Give me just a moment."
	throttleReply  = "Wow, we've been talking so much! Let's take a little quiet break, and I'll be right here when you're ready."
	breakReply     = "We've been chatting for a while! How about a little break? Maybe stretch, get some water, or play outside. I'll be here when you get back!"
	apologyReply   = "Oops, I got a little mixed up. Can you say that again?"
	fallbackReply  = "Hmm, let me think about that. Can you tell me more?"
	sayAgainReply  = "I didn't quite catch that. Can you say it again?"
)
