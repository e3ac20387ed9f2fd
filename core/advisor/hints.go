package advisor

import "github.com/learnwise/backend/core"

func hintPool(topic string, obviousness Obviousness) [3]string {
	switch obviousness {
	case ObviousnessEasy:
		if topic == "" {
			topic = "this topic"
		}
		return [3]string{
			"Think about the key concept: " + topic,
			"Break down the problem into smaller steps",
			"Consider what you learned in the related lesson",
		}
	case ObviousnessHard:
		return [3]string{
			"Take your time and read the question again",
			"Think about the fundamental principles involved",
			"Consider all options before answering",
		}
	default:
		return [3]string{
			"Review the question carefully and identify what's being asked",
			"Try to recall similar examples from your lessons",
			"Eliminate obviously wrong answers first",
		}
	}
}

// GenerateAdaptiveHint picks a hint from the obviousness pool; the pool entry and the
// encouragement suffix depend on the mastery band only.
func GenerateAdaptiveHint(topic string, mastery float64, obviousness Obviousness) string {
	pool := hintPool(core.CleanString(topic), obviousness)
	switch {
	case mastery < 40:
		return pool[0] + " - You're building your foundation, keep going!"
	case mastery < 70:
		return pool[1] + " - You're making good progress!"
	default:
		return pool[2] + " - Challenge yourself!"
	}
}
