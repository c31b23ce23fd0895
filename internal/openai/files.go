package openai

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

const PurposeAssistants = "assistants"

type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}

type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VectorStoreFile is a file attached to a vector store.
type VectorStoreFile struct {
	ID            string     `json:"id"`
	Object        string     `json:"object"`
	UsageBytes    int64      `json:"usage_bytes"`
	CreatedAt     int64      `json:"created_at"`
	VectorStoreID string     `json:"vector_store_id"`
	Status        string     `json:"status"`
	LastError     *LastError `json:"last_error,omitempty"`
}

type VectorStoreFileList struct {
	Data    []VectorStoreFile `json:"data"`
	FirstID string            `json:"first_id"`
	LastID  string            `json:"last_id"`
	HasMore bool              `json:"has_more"`
}

// UploadFile streams r to the files endpoint as a multipart form.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader, purpose string) (*File, error) {
	if purpose == "" {
		purpose = PurposeAssistants
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("purpose", purpose); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/files", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.send(c.longClient, req, "upload_file")
	if err != nil {
		pr.Close()
		return nil, err
	}
	defer resp.Body.Close()

	var f File
	if err := decodeBody(resp, &f); err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, fmt.Errorf("upload file: empty id in response")
	}
	return &f, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.doJSON(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), nil, &f, "get_file"); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) (*DeletionStatus, error) {
	var out DeletionStatus
	if err := c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, &out, "delete_file"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListVectorStoreFiles(ctx context.Context, vectorStoreID string, p ListParams) (*VectorStoreFileList, error) {
	var out VectorStoreFileList
	path := "/vector_stores/" + url.PathEscape(vectorStoreID) + "/files" + p.encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, "list_vector_store_files"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*DeletionStatus, error) {
	var out DeletionStatus
	path := "/vector_stores/" + url.PathEscape(vectorStoreID) + "/files/" + url.PathEscape(fileID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &out, "delete_vector_store_file"); err != nil {
		return nil, err
	}
	return &out, nil
}
