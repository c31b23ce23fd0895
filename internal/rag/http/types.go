package http

import "github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"

type askReq struct {
	Question string `json:"question"`
}

type uploadResp struct {
	OK bool `json:"ok"`
	*domain.UploadResult
}

type answerResp struct {
	OK bool `json:"ok"`
	*domain.Answer
}

type deltaEvent struct {
	Text string `json:"text"`
}

type errorResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
