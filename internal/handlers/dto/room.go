package dto

type CreateRoomRequest struct {
	CollectionID       int64 `json:"collection_id" binding:"required"`
	SecondsPerQuestion int   `json:"seconds_per_question"`
	PointsPerCorrect   int   `json:"points_per_correct"`
}

// SettingsRequest: отсутствующее поле не меняется
type SettingsRequest struct {
	SecondsPerQuestion *int `json:"seconds_per_question"`
	PointsPerCorrect   *int `json:"points_per_correct"`
}

type AnswerRequest struct {
	Text string `json:"text" binding:"required"`
}

type AnswerResponse struct {
	Correct bool    `json:"correct"`
	Elapsed float64 `json:"elapsed"`
}
