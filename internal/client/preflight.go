package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// maxUploadSize caps uploads at 10MB, matching the backend's limit.
// Rejecting locally avoids burning a round trip on a file the server
// will refuse anyway.
const maxUploadSize = 10 * 1024 * 1024

var validate = validator.New()

// payslipUploadPayload carries the fields validated before a payslip
// upload is submitted
type payslipUploadPayload struct {
	FilePath string `validate:"required"`
	PayMonth string `validate:"required,datetime=2006-01"`
}

// validateSpreadsheet checks an employee bulk upload file before
// submission: must exist, be .xlsx or .xls, and fit the size limit
func validateSpreadsheet(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path is required")
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext != ".xlsx" && ext != ".xls" {
		return fmt.Errorf("invalid file type %s: expected an Excel file (.xlsx or .xls)", ext)
	}

	return checkFileSize(filePath)
}

// validatePayslipFile checks a payslip upload before submission: pay
// month must be YYYY-MM, the file must be a PDF or ZIP within the size
// limit, and PDFs must pass structural validation
func validatePayslipFile(filePath, payMonth string) error {
	payload := payslipUploadPayload{FilePath: filePath, PayMonth: payMonth}
	if err := validate.Struct(payload); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			switch fieldErr.Field() {
			case "PayMonth":
				return fmt.Errorf("pay month must be in YYYY-MM format, got %q", payMonth)
			case "FilePath":
				return fmt.Errorf("file path is required")
			}
		}
		return err
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext != ".pdf" && ext != ".zip" {
		return fmt.Errorf("invalid file type %s: expected a PDF or ZIP file", ext)
	}

	if err := checkFileSize(filePath); err != nil {
		return err
	}

	// Structural validation catches corrupt PDFs before they reach the
	// backend parser
	if ext == ".pdf" {
		if err := pdfapi.ValidateFile(filePath, nil); err != nil {
			return fmt.Errorf("%s is not a valid PDF: %w", filepath.Base(filePath), err)
		}
	}

	return nil
}

func checkFileSize(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", filepath.Base(filePath), err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filepath.Base(filePath))
	}
	if info.Size() > maxUploadSize {
		return fmt.Errorf("file size must be less than 10MB, got %.2fMB", float64(info.Size())/1024/1024)
	}
	return nil
}
