package iac

import "fmt"

const serverlessEvidenceWeight = 1.0

// IsServerless reports Serverless Framework configuration files.
func IsServerless(name string) bool {
	return name == "serverless.yml" || name == "serverless.yaml"
}

// serverless extracts one Lambda function per entry under functions and, when
// the provider declares IAM statements, a policy entity holding them.
func (d *Detector) serverless(path string, src []byte) Result {
	root, err := parseYAML(src)
	if err != nil {
		d.logger.Debug().Err(err).Str("file", path).Msg("skipping malformed serverless config")
		return Result{}
	}
	service := scalar(mappingValue(root, "service"))
	provider := mappingValue(root, "provider")
	region := scalar(mappingValue(provider, "region"))
	runtime := scalar(mappingValue(provider, "runtime"))

	var out Result
	if functions := mappingValue(root, "functions"); functions != nil {
		for i := 0; i+1 < len(functions.Content); i += 2 {
			key, def := functions.Content[i], functions.Content[i+1]
			e := NewEntity(LambdaFunction, key.Value, ProviderAWS, path, key.Line, nil)
			e.Add(fmt.Sprintf("serverless function %s", key.Value), serverlessEvidenceWeight)
			e.SetConfig("name", key.Value)
			e.SetConfig("service", service)
			e.SetConfig("handler", scalar(mappingValue(def, "handler")))
			if rt := scalar(mappingValue(def, "runtime")); rt != "" {
				e.SetConfig("runtime", rt)
			} else {
				e.SetConfig("runtime", runtime)
			}
			e.SetConfig("role", resourceRef(mappingValue(def, "role")))
			e.SetConfig("region", region)
			if e.Accepted(d.threshold) {
				out.Entities = append(out.Entities, e)
			}
		}
	}

	statements := mappingValue(provider, "iamRoleStatements")
	if statements == nil {
		statements = mappingValue(mappingValue(mappingValue(provider, "iam"), "role"), "statements")
	}
	if statements != nil {
		name := "iam-role-statements"
		if service != "" {
			name = service + "-" + name
		}
		e := NewEntity(IamPolicy, name, ProviderAWS, path, statements.Line, nil)
		e.Add("serverless provider IAM statements", serverlessEvidenceWeight)
		e.SetConfig("name", name)
		e.SetConfig("statements", nodeValue(statements))
		e.SetConfig("region", region)
		if e.Accepted(d.threshold) {
			out.Entities = append(out.Entities, e)
			out.Vulnerabilities = append(out.Vulnerabilities, Evaluate(e, renderYAML(statements))...)
		}
	}
	return out
}
