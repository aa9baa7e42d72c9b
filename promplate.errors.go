package promplate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/itsatony/go-cuserr"

	"github.com/promplate/go-promplate/internal"
)

// Position represents a location in template source.
type Position struct {
	Offset int // Byte offset from start
	Line   int // 1-indexed line number
	Column int // 1-indexed column number
}

// String returns a human-readable position string.
func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// NewCompileError wraps a template syntax error with its location.
func NewCompileError(templateName string, cause error) error {
	var compileErr *internal.CompileError
	errors.As(cause, &compileErr)
	err := cuserr.WrapStdError(cause, ErrCodeCompile, ErrMsgCompileFailed).
		WithMetadata(MetaKeyCode, ErrCodeCompile).
		WithMetadata(MetaKeyTemplate, templateName)
	if compileErr != nil {
		err = err.
			WithMetadata(MetaKeyLine, strconv.Itoa(compileErr.Pos.Line)).
			WithMetadata(MetaKeyColumn, strconv.Itoa(compileErr.Pos.Column)).
			WithMetadata(MetaKeyOffset, strconv.Itoa(compileErr.Pos.Offset))
		if compileErr.Keyword != "" {
			err = err.WithMetadata(MetaKeyKeyword, compileErr.Keyword)
		}
	}
	return err
}

// NewRenderError converts an evaluation failure into a NameError or EvalError.
// Errors that already carry a code, jumps and foreign errors are returned unchanged.
func NewRenderError(templateName string, cause error) error {
	if cause == nil {
		return nil
	}
	var customErr *cuserr.CustomError
	if errors.As(cause, &customErr) {
		return cause
	}
	var evalErr *internal.EvalError
	if !errors.As(cause, &evalErr) {
		return cause
	}
	code := ErrCodeEval
	if evalErr.Kind == internal.ErrKindName {
		code = ErrCodeName
	}
	tmpl := evalErr.Template
	if tmpl == "" {
		tmpl = templateName
	}
	err := cuserr.WrapStdError(cause, code, ErrMsgRenderFailed).
		WithMetadata(MetaKeyCode, code).
		WithMetadata(MetaKeyKind, evalErr.Kind).
		WithMetadata(MetaKeyTemplate, tmpl).
		WithMetadata(MetaKeyLine, strconv.Itoa(evalErr.Line))
	if evalErr.Name != "" {
		err = err.WithMetadata(MetaKeyName, evalErr.Name)
	}
	return err
}

// NewResultNotSetError creates the error returned when the result slot is read before a node writes it.
func NewResultNotSetError() error {
	return cuserr.NewNotFoundError(MetaKeyKey, ErrMsgResultNotSet).
		WithMetadata(MetaKeyCode, ErrCodeResultNotSet).
		WithMetadata(MetaKeyKey, ResultKey)
}

// NewKeyNotFoundError creates a missing context key error.
func NewKeyNotFoundError(key string) error {
	return cuserr.NewNotFoundError(MetaKeyKey, ErrMsgKeyNotFound).
		WithMetadata(MetaKeyCode, ErrCodeKeyNotFound).
		WithMetadata(MetaKeyKey, key)
}

// NewUnsupportedContextError reports a value that cannot become a Context.
func NewUnsupportedContextError(value any) error {
	return cuserr.NewValidationError(ErrCodeContext, ErrMsgUnsupportedCtx).
		WithMetadata(MetaKeyCode, ErrCodeContext).
		WithMetadata(MetaKeyType, fmt.Sprintf("%T", value))
}

// NewNoCompletionError is returned when a runnable has nothing to complete with in the given mode.
func NewNoCompletionError(runnable, mode string) error {
	msg := ErrMsgNoCompletion
	if mode == ModeStream || mode == ModeAStream {
		msg = ErrMsgNoGeneration
	}
	return cuserr.NewValidationError(ErrCodeNoCompletion, msg).
		WithMetadata(MetaKeyCode, ErrCodeNoCompletion).
		WithMetadata(MetaKeyRunnable, runnable).
		WithMetadata(MetaKeyMode, mode)
}

// NewNotRenderableError reports a {% component %} value that cannot render.
func NewNotRenderableError(name string, component any) error {
	return cuserr.NewValidationError(ErrCodeEval, ErrMsgNotRenderable).
		WithMetadata(MetaKeyCode, ErrCodeEval).
		WithMetadata(MetaKeyName, name).
		WithMetadata(MetaKeyType, fmt.Sprintf("%T", component))
}

// NewTemplateNotFoundError creates a storage lookup miss.
func NewTemplateNotFoundError(name string) error {
	return cuserr.NewNotFoundError(MetaKeyTemplate, ErrMsgTemplateNotFound).
		WithMetadata(MetaKeyCode, ErrCodeNotFound).
		WithMetadata(MetaKeyTemplate, name)
}

// NewTemplateVersionNotFoundError creates a lookup miss for one version of a stored template.
func NewTemplateVersionNotFoundError(name string, version int) error {
	return cuserr.NewNotFoundError(MetaKeyTemplate, ErrMsgVersionNotFound).
		WithMetadata(MetaKeyCode, ErrCodeNotFound).
		WithMetadata(MetaKeyTemplate, name).
		WithMetadata(MetaKeyVersion, strconv.Itoa(version))
}

// NewStorageClosedError is returned by every operation on a closed storage.
func NewStorageClosedError() error {
	return NewStorageError(ErrMsgStorageClosed, "", nil)
}

// NewStorageError wraps a storage backend failure.
func NewStorageError(msg, templateName string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeStorage, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeStorage, msg)
	}
	err = err.WithMetadata(MetaKeyCode, ErrCodeStorage)
	if templateName != "" {
		err = err.WithMetadata(MetaKeyTemplate, templateName)
	}
	return err
}

// NewRegistryError reports a storage driver registration problem.
func NewRegistryError(msg, driver string) error {
	return cuserr.NewValidationError(ErrCodeRegistry, msg).
		WithMetadata(MetaKeyCode, ErrCodeRegistry).
		WithMetadata(MetaKeyDriver, driver)
}

// NewDocumentError reports a malformed template document.
func NewDocumentError(msg, path string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeDocument, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeDocument, msg)
	}
	return err.
		WithMetadata(MetaKeyCode, ErrCodeDocument).
		WithMetadata(MetaKeyPath, path)
}

// NewChainSpecError reports an invalid chain spec field.
func NewChainSpecError(msg, field string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeChainSpec, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeChainSpec, msg)
	}
	return err.
		WithMetadata(MetaKeyCode, ErrCodeChainSpec).
		WithMetadata(MetaKeyField, field)
}

// NewCacheError wraps a completion cache backend failure.
func NewCacheError(cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeCache, ErrMsgCacheFailed).
		WithMetadata(MetaKeyCode, ErrCodeCache)
}

// NewMetricsError wraps a failed collector registration.
func NewMetricsError(cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeRegistry, ErrMsgMetricsRegister).
		WithMetadata(MetaKeyCode, ErrCodeRegistry)
}

// NewLLMError wraps a failure returned by a completion provider.
func NewLLMError(provider string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeLLM, ErrMsgLLMFailed).
		WithMetadata(MetaKeyCode, ErrCodeLLM).
		WithMetadata(MetaKeyProvider, provider)
}

// NewFuncRegistrationError reports an invalid custom function.
func NewFuncRegistrationError(msg, funcName string) error {
	return cuserr.NewValidationError(ErrCodeRegistry, msg).
		WithMetadata(MetaKeyCode, ErrCodeRegistry).
		WithMetadata(MetaKeyFuncName, funcName)
}

// ErrorCode returns the promplate error code carried by err, if any.
func ErrorCode(err error) (string, bool) {
	var customErr *cuserr.CustomError
	if !errors.As(err, &customErr) {
		return "", false
	}
	return customErr.GetMetadata(MetaKeyCode)
}

// ErrorPosition returns where in the template source a compile error was found.
func ErrorPosition(err error) (Position, bool) {
	var customErr *cuserr.CustomError
	if !errors.As(err, &customErr) {
		return Position{}, false
	}
	line, ok := customErr.GetMetadata(MetaKeyLine)
	if !ok {
		return Position{}, false
	}
	var pos Position
	pos.Line, _ = strconv.Atoi(line)
	if col, ok := customErr.GetMetadata(MetaKeyColumn); ok {
		pos.Column, _ = strconv.Atoi(col)
	}
	if off, ok := customErr.GetMetadata(MetaKeyOffset); ok {
		pos.Offset, _ = strconv.Atoi(off)
	}
	return pos, true
}

func hasCode(err error, code string) bool {
	c, ok := ErrorCode(err)
	return ok && c == code
}

// IsCompileError reports whether err is a template syntax error.
func IsCompileError(err error) bool { return hasCode(err, ErrCodeCompile) }

// IsNameError reports whether err is an undefined variable at render time.
func IsNameError(err error) bool { return hasCode(err, ErrCodeName) }

// IsEvalError reports whether err is an expression evaluation failure other than a NameError.
func IsEvalError(err error) bool { return hasCode(err, ErrCodeEval) }

// IsResultNotSet reports whether err comes from reading an unset result.
func IsResultNotSet(err error) bool { return hasCode(err, ErrCodeResultNotSet) }

// IsKeyNotFound reports whether err is a missing context key.
func IsKeyNotFound(err error) bool {
	return hasCode(err, ErrCodeKeyNotFound) || hasCode(err, ErrCodeResultNotSet)
}

// IsNoCompletion reports whether a runnable had no capability for its mode.
func IsNoCompletion(err error) bool { return hasCode(err, ErrCodeNoCompletion) }

// IsNotFound reports whether a stored template was missing.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }
