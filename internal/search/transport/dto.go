package transport

import (
	"fractionax_search/internal/dispatch"
	"fractionax_search/internal/pipeline"
)

type InputRequest struct {
	Text string `json:"text" validate:"max=500"`
}

type KeyRequest struct {
	Key string `json:"key" validate:"required,oneof=ArrowDown ArrowUp Enter Escape"`
}

type PointerRequest struct {
	Region string `json:"region" validate:"required,oneof=input dropdown outside"`
}

type CreateSessionResponse struct {
	ID   string        `json:"id"`
	View pipeline.View `json:"view"`
}

type KeyResponse struct {
	Consumed bool          `json:"consumed"`
	View     pipeline.View `json:"view"`
}

type SearchResponse struct {
	Outcome *dispatch.Outcome `json:"outcome"`
	View    pipeline.View     `json:"view"`
}
