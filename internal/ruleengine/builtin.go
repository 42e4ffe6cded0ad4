package ruleengine

import "github.com/agenttrust/agenttrust/internal/logstream"

// builtinRules returns the always-loaded detector set, individually
// disabled via rules.yaml's `disableBuiltin` map. Covers the same attack
// surface as the pack's guardrail rule set — sensitive-file access,
// destructive commands, credential exfiltration, privacy/surveillance,
// messaging admin actions, self-modification — reframed from
// block/allow decisions onto execution-entry findings.
func builtinRules() []Rule {
	return []Rule{
		{
			ID:               "sensitive_ssh_key_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileRead, logstream.ActionFileWrite}, TargetContains: []string{".ssh/id_"}},
			Severity:         SeverityCritical,
			Reason:           "access to an SSH private key",
			RiskContribution: 8,
			Labels:           []string{"credential-access"},
			Builtin:          true,
		},
		{
			ID:               "sensitive_env_file_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileRead, logstream.ActionFileWrite}, TargetGlobs: []string{"**/.env"}},
			Severity:         SeverityHigh,
			Reason:           "access to a .env file",
			RiskContribution: 6,
			Labels:           []string{"credential-access"},
			Builtin:          true,
		},
		{
			ID:               "credential_file_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileRead, logstream.ActionFileWrite, logstream.ActionCredentialRead}, TargetContains: []string{".aws/credentials"}},
			Severity:         SeverityCritical,
			Reason:           "access to a cloud credential file",
			RiskContribution: 8,
			Labels:           []string{"credential-access"},
			Builtin:          true,
		},
		{
			ID:               "shell_config_write",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileWrite}, TargetContains: []string{".bashrc", ".zshrc", ".profile"}},
			Severity:         SeverityMedium,
			Reason:           "modification of shell startup configuration",
			RiskContribution: 5,
			Labels:           []string{"persistence"},
			Builtin:          true,
		},
		{
			ID:               "browser_password_store_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileRead, logstream.ActionExecCommand}, TargetContains: []string{"Login Data"}},
			Severity:         SeverityCritical,
			Reason:           "access to a browser password database",
			RiskContribution: 8,
			Labels:           []string{"credential-access"},
			Builtin:          true,
		},
		{
			ID:               "private_key_content_transmitted",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileWrite, logstream.ActionDataExport}, TargetContains: []string{"PRIVATE KEY-----"}},
			Severity:         SeverityCritical,
			Reason:           "private key content written or exported",
			RiskContribution: 9,
			Labels:           []string{"credential-access", "exfiltration"},
			Builtin:          true,
		},
		{
			ID:               "system_credential_file_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileRead, logstream.ActionFileWrite}, TargetContains: []string{"/etc/shadow"}},
			Severity:         SeverityCritical,
			Reason:           "access to a system credential file",
			RiskContribution: 9,
			Labels:           []string{"credential-access"},
			Builtin:          true,
		},
		{
			ID:               "self_config_modification",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionFileWrite, logstream.ActionConfigChange}, TargetContains: []string{".agenttrust/"}},
			Severity:         SeverityHigh,
			Reason:           "modification of this system's own configuration directory",
			RiskContribution: 7,
			Labels:           []string{"self-modification"},
			Builtin:          true,
		},
		{
			ID:               "destructive_command",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionExecCommand, logstream.ActionExecScript}, CommandRegex: `rm\s+-rf\s+/|mkfs|dd\s+if=|:\(\)\{\s*:\|:&\s*\};:`},
			Severity:         SeverityCritical,
			Reason:           "destructive command pattern",
			RiskContribution: 9,
			Labels:           []string{"destructive"},
			Builtin:          true,
		},
		{
			ID:               "credential_exfiltration_command",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionExecCommand}, CommandRegex: `(curl|wget|nc|ncat).*\.(env|pem|key|credentials)`},
			Severity:         SeverityCritical,
			Reason:           "command pattern consistent with credential exfiltration",
			RiskContribution: 9,
			Labels:           []string{"exfiltration"},
			Builtin:          true,
		},
		{
			ID:               "camera_or_microphone_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionExecCommand}, TargetContains: []string{"camera", "microphone", "screen_record"}},
			Severity:         SeverityHigh,
			Reason:           "surveillance-capable device access",
			RiskContribution: 6,
			Labels:           []string{"privacy"},
			Builtin:          true,
		},
		{
			ID:               "location_access",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionExecCommand}, TargetContains: []string{"location_get", "geolocation"}},
			Severity:         SeverityMedium,
			Reason:           "location data access",
			RiskContribution: 4,
			Labels:           []string{"privacy"},
			Builtin:          true,
		},
		{
			ID:               "messaging_admin_action",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionMessageSend}, TargetContains: []string{"kick", "ban", "timeout"}},
			Severity:         SeverityHigh,
			Reason:           "messaging platform administrative action",
			RiskContribution: 5,
			Labels:           []string{"admin-action"},
			Builtin:          true,
		},
		{
			ID:               "payment_high_risk",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionPaymentInitiate, logstream.ActionPaymentApprove}},
			Severity:         SeverityHigh,
			Reason:           "financial transaction action",
			RiskContribution: 6,
			Labels:           []string{"financial"},
			Builtin:          true,
		},
		{
			ID:               "elevated_privilege_enable",
			Match:            RuleMatch{ActionTypes: []string{logstream.ActionElevatedEnable}},
			Severity:         SeverityHigh,
			Reason:           "privilege elevation enabled",
			RiskContribution: 6,
			Labels:           []string{"escalation"},
			Builtin:          true,
		},
	}
}
