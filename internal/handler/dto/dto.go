// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MessageSuccess is the message of a successful book endpoint.
const MessageSuccess = "Success"
