package models

// DetectedObject is one object the vision model located in an image.
type DetectedObject struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Annotation is the per-image result of a vision analysis call. It only
// exists for the duration of the worker tick that produced it.
type Annotation struct {
	Tags        []string         `json:"tags"`
	Description string           `json:"description"`
	SceneType   string           `json:"scene_type"`
	Objects     []DetectedObject `json:"objects"`
	Colors      []string         `json:"colors"`
}
