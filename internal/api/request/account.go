// Package request decodes and validates API payloads.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/accountfactory/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeProvisionRequest parses and validates an account provisioning
// request body. The returned map holds per-field validation messages and is
// nil when the request is valid.
func DecodeProvisionRequest(body io.Reader) (model.ProvisionRequest, map[string]string, error) {
	var req model.ProvisionRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return model.ProvisionRequest{}, nil, fmt.Errorf("decode request: %w", err)
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := map[string]string{}
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
			return model.ProvisionRequest{}, fields, nil
		}
		return model.ProvisionRequest{}, nil, err
	}

	for i, mapping := range req.ADIntegration {
		if mapping.GroupName == "" || mapping.PermissionSetName == "" {
			return model.ProvisionRequest{}, map[string]string{
				fmt.Sprintf("ad_integration[%d]", i): "group_name and permission_set_name are required",
			}, nil
		}
	}
	return req, nil, nil
}
