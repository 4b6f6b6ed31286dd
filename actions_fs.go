package aro

import (
	"io"
	"os"
	"path/filepath"
)

// RegisterFileSystemActions installs the file-system convenience verbs
// of spec §4.3: List, Stat, Exists, Copy, Move, Append, CreateDirectory.
// All are `own`-role: they bind their result, none are terminal.
func RegisterFileSystemActions(r *Registry) {
	r.Register("list", RoleOwn, actionList)
	r.Register("stat", RoleOwn, actionStat)
	r.Register("exists", RoleOwn, actionExists)
	r.Register("copy", RoleOwn, actionCopy)
	r.Register("move", RoleOwn, actionMove)
	r.Register("append", RoleOwn, actionAppend)
	r.Register("createdirectory", RoleOwn, actionCreateDirectory)
}

func actionList(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	entries, err := os.ReadDir(object.Base)
	if err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	out := make([]Value, 0, len(entries))
	for _, e := range entries {
		out = append(out, String(e.Name()))
	}
	return Succeed(Sequence(out))
}

// actionStat implements spec §6 "File system surface": Stat returns
// {name, path, size, isFile, isDirectory, created, modified, permissions}
// where permissions is a nine-character rwx string.
func actionStat(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	info, err := os.Stat(object.Base)
	if err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	out := NewOrderedMap()
	out.Set("name", String(info.Name()))
	out.Set("path", String(object.Base))
	out.Set("size", Int(info.Size()))
	out.Set("isFile", Bool(!info.IsDir()))
	out.Set("isDirectory", Bool(info.IsDir()))
	out.Set("created", Time(info.ModTime()))
	out.Set("modified", Time(info.ModTime()))
	out.Set("permissions", String(rwxString(info.Mode())))
	return Succeed(Map(out))
}

func rwxString(mode os.FileMode) string {
	perm := mode.Perm()
	bits := "rwxrwxrwx"
	out := make([]byte, 9)
	for i := 0; i < 9; i++ {
		if perm&(1<<(8-i)) != 0 {
			out[i] = bits[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

func actionExists(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	_, err := os.Stat(object.Base)
	return Succeed(Bool(err == nil))
}

func actionCopy(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	dest := destinationOf(ctx, result)
	if dest == "" {
		return Fail(&ActionError{Kind: ErrComputationError, Message: "Copy requires a destination"})
	}
	if err := copyFile(object.Base, dest); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(String(dest))
}

func actionMove(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	dest := destinationOf(ctx, result)
	if dest == "" {
		return Fail(&ActionError{Kind: ErrComputationError, Message: "Move requires a destination"})
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	if err := os.Rename(object.Base, dest); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(String(dest))
}

func destinationOf(ctx *Context, result ResultDescriptor) string {
	if v, ok := ctx.Resolve(BindingTo); ok {
		return stringOf(v)
	}
	if v, ok := ctx.Resolve(BindingExpression); ok {
		return stringOf(v)
	}
	return result.Base
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func actionAppend(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v := operandValue(ctx, object)
	f, err := os.OpenFile(result.Base, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	defer f.Close()
	raw, err := rawBytes(v)
	if err != nil {
		return Fail(&ActionError{Kind: ErrComputationError, Message: err.Error()})
	}
	if _, err := f.Write(raw); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(v)
}

func rawBytes(v Value) ([]byte, error) {
	switch v.Kind() {
	case KindBytes:
		return v.AsBytes(), nil
	case KindString:
		return []byte(v.AsString()), nil
	default:
		return ToJSON(v)
	}
}

// actionCreateDirectory creates directories recursively where ambiguous
// (spec §4.3's "directories are created recursively where ambiguous").
func actionCreateDirectory(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	if err := os.MkdirAll(object.Base, 0o755); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(String(object.Base))
}
