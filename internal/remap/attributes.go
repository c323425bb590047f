// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"fmt"

	"github.com/crossmod/crossmod/internal/classfile"
)

// attrContext carries what an attribute rewrite needs to know about its holder.
type attrContext struct {
	// literals enables rewriting of string element values in visible annotations.
	literals bool
	// member names the holding method in warnings.
	member string
}

func (rw *rewrite) attributes(attrs []*classfile.Attribute, ctx attrContext) ([]*classfile.Attribute, error) {
	for _, a := range attrs {
		name, err := rw.orig.Utf8(a.Name)
		if err != nil {
			return nil, err
		}
		data, err := rw.attribute(name, a.Data, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s attribute: %w", name, err)
		}
		a.Data = data
	}
	return attrs, nil
}

func (rw *rewrite) attribute(name string, data []byte, ctx attrContext) ([]byte, error) {
	r := rw.e.remapper
	switch name {
	case classfile.AttrSignature:
		idx, err := classfile.ParseU2(data)
		if err != nil {
			return nil, err
		}
		sig, err := rw.orig.Utf8(idx)
		if err != nil {
			return nil, err
		}
		mapped, err := r.Signature(sig)
		if err != nil {
			rw.warn(ctx, err.Error())
			return data, nil
		}
		if mapped == sig {
			return data, nil
		}
		if idx, err = rw.utf8(mapped); err != nil {
			return nil, err
		}
		return classfile.U2(idx), nil

	case classfile.AttrCode:
		code, err := classfile.ParseCode(data)
		if err != nil {
			return nil, err
		}
		if code.Attributes, err = rw.attributes(code.Attributes, ctx); err != nil {
			return nil, err
		}
		return code.Bytes(), nil

	case classfile.AttrLocalVariableTable, classfile.AttrLocalVariableTypeTable:
		vars, err := classfile.ParseLocalVariables(data)
		if err != nil {
			return nil, err
		}
		for i, v := range vars {
			desc, err := rw.orig.Utf8(v.Desc)
			if err != nil {
				return nil, err
			}
			mapped := r.Desc(desc)
			if name == classfile.AttrLocalVariableTypeTable {
				if mapped, err = r.Signature(desc); err != nil {
					rw.warn(ctx, err.Error())
					continue
				}
			}
			if mapped != desc {
				if vars[i].Desc, err = rw.utf8(mapped); err != nil {
					return nil, err
				}
			}
		}
		return classfile.LocalVariablesBytes(vars), nil

	case classfile.AttrInnerClasses:
		classes, err := classfile.ParseInnerClasses(data)
		if err != nil {
			return nil, err
		}
		for i, ic := range classes {
			if ic.Name == 0 {
				continue
			}
			inner, err := rw.orig.ClassName(ic.Inner)
			if err != nil {
				return nil, err
			}
			simple, err := rw.orig.Utf8(ic.Name)
			if err != nil {
				return nil, err
			}
			if mapped := r.InnerName(inner, simple); mapped != simple {
				if classes[i].Name, err = rw.utf8(mapped); err != nil {
					return nil, err
				}
			}
		}
		return classfile.InnerClassesBytes(classes), nil

	case classfile.AttrEnclosingMethod:
		em, err := classfile.ParseEnclosingMethod(data)
		if err != nil {
			return nil, err
		}
		if em.Method == 0 {
			return data, nil
		}
		owner, err := rw.orig.ClassName(em.Class)
		if err != nil {
			return nil, err
		}
		mname, mdesc, err := rw.orig.NameAndType(em.Method)
		if err != nil {
			return nil, err
		}
		if em.Method, err = rw.cf.Pool.AddNameAndType(r.Method(owner, mname, mdesc), r.Desc(mdesc)); err != nil {
			return nil, err
		}
		return em.Bytes(), nil

	case classfile.AttrRecord:
		components, err := classfile.ParseRecord(data)
		if err != nil {
			return nil, err
		}
		for i := range components {
			rc := &components[i]
			cname, err := rw.orig.Utf8(rc.Name)
			if err != nil {
				return nil, err
			}
			cdesc, err := rw.orig.Utf8(rc.Desc)
			if err != nil {
				return nil, err
			}
			if rc.Name, err = rw.utf8(r.Field(rw.self, cname, cdesc)); err != nil {
				return nil, err
			}
			if rc.Desc, err = rw.utf8(r.Desc(cdesc)); err != nil {
				return nil, err
			}
			if rc.Attributes, err = rw.attributes(rc.Attributes, attrContext{}); err != nil {
				return nil, err
			}
		}
		return classfile.RecordBytes(components), nil

	case classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations:
		anns, err := classfile.ParseAnnotations(data)
		if err != nil {
			return nil, err
		}
		literals := ctx.literals && name == classfile.AttrRuntimeVisibleAnnotations
		for _, ann := range anns {
			if err := rw.annotation(ann, literals, ctx); err != nil {
				return nil, err
			}
		}
		return classfile.AnnotationsBytes(anns), nil

	case classfile.AttrRuntimeVisibleParameterAnnotations, classfile.AttrRuntimeInvisibleParameterAnnotations:
		params, err := classfile.ParseParameterAnnotations(data)
		if err != nil {
			return nil, err
		}
		for _, anns := range params {
			for _, ann := range anns {
				if err := rw.annotation(ann, false, ctx); err != nil {
					return nil, err
				}
			}
		}
		return classfile.ParameterAnnotationsBytes(params), nil

	case classfile.AttrRuntimeVisibleTypeAnnotations, classfile.AttrRuntimeInvisibleTypeAnnotations:
		anns, err := classfile.ParseTypeAnnotations(data)
		if err != nil {
			return nil, err
		}
		for _, ta := range anns {
			if err := rw.annotation(ta.Annotation, false, ctx); err != nil {
				return nil, err
			}
		}
		return classfile.TypeAnnotationsBytes(anns), nil

	case classfile.AttrAnnotationDefault:
		v, err := classfile.ParseElementValue(data)
		if err != nil {
			return nil, err
		}
		if err := rw.elementValue(v, false, ctx); err != nil {
			return nil, err
		}
		return classfile.ElementValueBytes(v), nil
	}
	return data, nil
}

func (rw *rewrite) annotation(ann *classfile.Annotation, literals bool, ctx attrContext) error {
	desc, err := rw.orig.Utf8(ann.Type)
	if err != nil {
		return err
	}
	if mapped := rw.e.remapper.Desc(desc); mapped != desc {
		if ann.Type, err = rw.utf8(mapped); err != nil {
			return err
		}
	}
	for _, el := range ann.Elements {
		if err := rw.elementValue(el.Value, literals, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (rw *rewrite) elementValue(v *classfile.ElementValue, literals bool, ctx attrContext) error {
	r := rw.e.remapper
	switch v.Tag {
	case 's':
		if !literals {
			return nil
		}
		s, err := rw.orig.Utf8(v.Const)
		if err != nil {
			return err
		}
		mapped, mapErr := rw.e.values.Map(s)
		if mapErr != nil {
			rw.warn(ctx, fmt.Sprintf("%q: %v", s, mapErr))
			return nil
		}
		if mapped != s {
			if v.Const, err = rw.utf8(mapped); err != nil {
				return err
			}
			rw.stats.Literals++
		}

	case 'e':
		typeDesc, err := rw.orig.Utf8(v.EnumType)
		if err != nil {
			return err
		}
		constName, err := rw.orig.Utf8(v.EnumName)
		if err != nil {
			return err
		}
		if owner := internalName(typeDesc); owner != "" {
			if mapped := r.Field(owner, constName, typeDesc); mapped != constName {
				if v.EnumName, err = rw.utf8(mapped); err != nil {
					return err
				}
			}
		}
		if mapped := r.Desc(typeDesc); mapped != typeDesc {
			if v.EnumType, err = rw.utf8(mapped); err != nil {
				return err
			}
		}

	case 'c':
		desc, err := rw.orig.Utf8(v.Class)
		if err != nil {
			return err
		}
		if mapped := r.Desc(desc); mapped != desc {
			if v.Class, err = rw.utf8(mapped); err != nil {
				return err
			}
		}

	case '@':
		return rw.annotation(v.Annotation, literals, ctx)

	case '[':
		for _, item := range v.Values {
			if err := rw.elementValue(item, literals, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rw *rewrite) warn(ctx attrContext, detail string) {
	if ctx.member != "" {
		detail = ctx.member + ": " + detail
	}
	rw.stats.Warnings = append(rw.stats.Warnings, detail)
}
