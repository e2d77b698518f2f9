package internal

import (
	"encoding/json"
	"net/http"
)

// Response is a fully formed reply produced by an ErrorHandler.
type Response interface {
	Send(w http.ResponseWriter) error
}

// ErrorHandler turns an error into the response sent for it.
type ErrorHandler func(err error, c Context) Response

// JSONResponse sends Body as JSON with Status. A nil Body sends headers only.
type JSONResponse struct {
	Header http.Header
	Body   any
	Status int
}

func (r JSONResponse) Send(w http.ResponseWriter) error {
	copyHeader(w.Header(), r.Header)
	if r.Body == nil {
		w.WriteHeader(r.Status)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(r.Status)
	return json.NewEncoder(w).Encode(r.Body)
}

// TextResponse sends Body as plain text.
type TextResponse struct {
	Header http.Header
	Body   string
	Status int
}

func (r TextResponse) Send(w http.ResponseWriter) error {
	copyHeader(w.Header(), r.Header)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(r.Status)
	_, err := w.Write([]byte(r.Body))
	return err
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
