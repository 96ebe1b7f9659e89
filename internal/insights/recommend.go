package insights

type Category string

const (
	CategoryGaming        Category = "gaming"
	CategoryStreaming     Category = "streaming"
	CategoryCommunication Category = "communication"
	CategoryBrowsing      Category = "browsing"
)

type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusPoor      Status = "poor"
)

// Activity is a use case with the worst latency and loss it tolerates.
type Activity struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      Category `json:"category"`
	MaxLatency    float64  `json:"max_latency_ms"`
	MaxPacketLoss float64  `json:"max_packet_loss_pct"`
}

type Recommendation struct {
	Activity Activity `json:"activity"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
}

// comfortMargin is the fraction of an activity's limits that still counts as
// excellent.
const comfortMargin = 0.7

var Activities = []Activity{
	{Name: "Competitive Gaming", Description: "FPS, MOBA, fighting games", Category: CategoryGaming, MaxLatency: 30, MaxPacketLoss: 0.5},
	{Name: "Casual Gaming", Description: "Turn-based, strategy games", Category: CategoryGaming, MaxLatency: 80, MaxPacketLoss: 2},
	{Name: "4K Streaming", Description: "Ultra HD video content", Category: CategoryStreaming, MaxLatency: 50, MaxPacketLoss: 1},
	{Name: "HD Streaming", Description: "1080p video content", Category: CategoryStreaming, MaxLatency: 100, MaxPacketLoss: 2},
	{Name: "Video Calls", Description: "Zoom, FaceTime, Teams", Category: CategoryCommunication, MaxLatency: 150, MaxPacketLoss: 3},
	{Name: "Voice Calls", Description: "Phone calls, Discord", Category: CategoryCommunication, MaxLatency: 200, MaxPacketLoss: 5},
	{Name: "Web Browsing", Description: "General internet usage", Category: CategoryBrowsing, MaxLatency: 300, MaxPacketLoss: 10},
}

// Recommend rates every known activity against the given conditions. It
// returns nil when there is no latency measurement.
func Recommend(avgLatency *float64, packetLoss float64) []Recommendation {
	if avgLatency == nil {
		return nil
	}
	latency := *avgLatency
	out := make([]Recommendation, 0, len(Activities))
	for _, a := range Activities {
		status := rate(a, latency, packetLoss)
		out = append(out, Recommendation{Activity: a, Status: status, Message: message(a, status, latency)})
	}
	return out
}

// Suitable returns the activities rated good or better.
func Suitable(avgLatency *float64, packetLoss float64) []Activity {
	var out []Activity
	for _, r := range Recommend(avgLatency, packetLoss) {
		if r.Status != StatusPoor {
			out = append(out, r.Activity)
		}
	}
	return out
}

func rate(a Activity, latency, loss float64) Status {
	switch {
	case latency <= a.MaxLatency*comfortMargin && loss <= a.MaxPacketLoss*comfortMargin:
		return StatusExcellent
	case latency <= a.MaxLatency && loss <= a.MaxPacketLoss:
		return StatusGood
	default:
		return StatusPoor
	}
}

func message(a Activity, status Status, latency float64) string {
	switch status {
	case StatusExcellent:
		return "Perfect connection"
	case StatusGood:
		return "Should work well"
	}
	if latency > a.MaxLatency {
		return "Latency too high"
	}
	return "Too much packet loss"
}
