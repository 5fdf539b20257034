package iac

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"repograph/internal/rules"
)

const (
	tfEvidenceWeight = 1.0
	tfResourceBlock  = "resource"
	tfProviderBlock  = "provider"
)

type tfResource struct {
	typ   string
	name  string
	block *hclsyntax.Block
	text  string
}

// terraform parses one .tf file. Resource types are mapped onto entity types by
// the iac_resources rules; unmapped resources are ignored. A malformed file
// yields nothing.
func (d *Detector) terraform(path string, src []byte) Result {
	file, diags := hclsyntax.ParseConfig(src, path, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		d.logger.Debug().Str("file", path).Str("error", diags.Error()).Msg("skipping malformed terraform")
		return Result{}
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return Result{}
	}

	region := ""
	var resources []tfResource
	for _, b := range body.Blocks {
		switch {
		case b.Type == tfProviderBlock && len(b.Labels) == 1 && b.Labels[0] == ProviderAWS:
			region = attrLiteral(b.Body, "region", src)
		case b.Type == tfResourceBlock && len(b.Labels) == 2:
			resources = append(resources, tfResource{
				typ:   b.Labels[0],
				name:  b.Labels[1],
				block: b,
				text:  string(b.Range().SliceBytes(src)),
			})
		}
	}

	var out Result
	for _, r := range resources {
		rule, ok := d.rules.Lookup(rules.IaCResources, r.typ)
		if !ok {
			continue
		}
		typ, err := ParseEntityType(rule.Kind)
		if err != nil {
			continue
		}

		e := NewEntity(typ, r.name, providerOr(rule.Provider), path, r.block.DefRange().Start.Line, nil)
		e.Add(fmt.Sprintf("terraform resource %s.%s", r.typ, r.name), tfEvidenceWeight)
		e.SetConfig("name", r.name)
		e.SetConfig("resource_type", r.typ)
		e.SetConfig("arn", findARN(r.text))
		if rg := attrLiteral(r.block.Body, "region", src); rg != "" {
			e.SetConfig("region", rg)
		} else {
			e.SetConfig("region", region)
		}

		checkText := r.text
		switch typ {
		case LambdaFunction:
			e.SetConfig("runtime", attrLiteral(r.block.Body, "runtime", src))
			e.SetConfig("handler", attrLiteral(r.block.Body, "handler", src))
			e.SetConfig("role", referencedName(r.block.Body, "role", src))
		case IamPolicy:
			e.SetConfig("policy_document", attrRaw(r.block.Body, "policy", src))
		case S3Bucket:
			bucket := attrLiteral(r.block.Body, "bucket", src)
			if bucket == "" {
				bucket = r.name
			}
			if e.Arn == nil {
				e.SetConfig("arn", "arn:aws:s3:::"+bucket)
			}
			checkText += referencingText(resources, r)
		}

		if !e.Accepted(d.threshold) {
			continue
		}
		out.Entities = append(out.Entities, e)
		out.Vulnerabilities = append(out.Vulnerabilities, Evaluate(e, checkText)...)
	}
	return out
}

// referencingText joins the bodies of other resources that point at r, so
// that split-out settings such as aws_s3_bucket_public_access_block or
// encryption configuration count for the bucket they configure.
func referencingText(all []tfResource, r tfResource) string {
	ref := r.typ + "." + r.name + "."
	var b strings.Builder
	for _, o := range all {
		if o.block == r.block || !strings.Contains(o.text, ref) {
			continue
		}
		b.WriteString("\n")
		b.WriteString(o.text)
	}
	return b.String()
}

// attrRaw returns the source text of an attribute expression.
func attrRaw(body *hclsyntax.Body, name string, src []byte) string {
	attr, ok := body.Attributes[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(attr.Expr.Range().SliceBytes(src)))
}

// attrLiteral returns a quoted attribute value without its quotes. Values
// containing interpolation are returned as written.
func attrLiteral(body *hclsyntax.Body, name string, src []byte) string {
	raw := attrRaw(body, name, src)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// referencedName resolves attributes like role = aws_iam_role.exec.arn to the
// referenced resource name "exec". Literal values are returned unchanged.
func referencedName(body *hclsyntax.Body, name string, src []byte) string {
	attr, ok := body.Attributes[name]
	if !ok {
		return ""
	}
	if st, ok := attr.Expr.(*hclsyntax.ScopeTraversalExpr); ok && len(st.Traversal) >= 2 {
		if step, ok := st.Traversal[1].(hcl.TraverseAttr); ok {
			return step.Name
		}
	}
	return attrLiteral(body, name, src)
}

// findARN returns the first literal ARN in text.
func findARN(text string) string {
	i := strings.Index(text, "arn:aws:")
	if i < 0 {
		return ""
	}
	end := strings.IndexAny(text[i:], "\"' \n\t,]}")
	if end < 0 {
		return text[i:]
	}
	return text[i : i+end]
}

func providerOr(p string) string {
	if p == "" {
		return ProviderGeneric
	}
	return p
}
