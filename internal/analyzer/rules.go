package analyzer

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Phase is a MITRE ATT&CK style attack stage.
type Phase string

const (
	PhaseReconnaissance      Phase = "RECONNAISSANCE"
	PhaseCredentialAccess    Phase = "CREDENTIAL_ACCESS"
	PhasePersistence         Phase = "PERSISTENCE"
	PhasePrivilegeEscalation Phase = "PRIVILEGE_ESCALATION"
	PhaseDefenseEvasion      Phase = "DEFENSE_EVASION"
	PhaseDiscovery           Phase = "DISCOVERY"
	PhaseLateralMovement     Phase = "LATERAL_MOVEMENT"
	PhaseCollection          Phase = "COLLECTION"
	PhaseExfiltration        Phase = "EXFILTRATION"
	PhaseExploitation        Phase = "EXPLOITATION"
	PhaseMalwareDeployment   Phase = "MALWARE_DEPLOYMENT"
)

// KillChainOrder is the canonical ordering used for kill-chain progress.
var KillChainOrder = []Phase{
	PhaseReconnaissance,
	PhaseCredentialAccess,
	PhasePrivilegeEscalation,
	PhasePersistence,
	PhaseDefenseEvasion,
	PhaseDiscovery,
	PhaseLateralMovement,
	PhaseCollection,
	PhaseExfiltration,
	PhaseExploitation,
	PhaseMalwareDeployment,
}

// PhaseRule is one declarative phase entry: the phase, a description, and
// an ordered pattern list.
type PhaseRule struct {
	Phase       Phase    `yaml:"phase"`
	Description string   `yaml:"description"`
	Patterns    []string `yaml:"patterns"`
}

// RuleFile is the on-disk YAML shape of a rule table.
type RuleFile struct {
	Phases    []PhaseRule `yaml:"phases"`
	Dangerous []string    `yaml:"dangerous"`
}

// LoadStats tracks how many patterns compiled or were skipped.
type LoadStats struct {
	Phases          int
	Patterns        int
	SkippedInvalid  int
	DangerousLoaded int
}

type compiledPhase struct {
	phase       Phase
	description string
	patterns    []*regexp.Regexp
}

// RuleSet is a compiled, immutable pattern table.
type RuleSet struct {
	phases    []compiledPhase
	dangerous []*regexp.Regexp
}

// LoadRuleSet reads a YAML rule table and compiles its patterns. Invalid
// patterns are skipped and counted in stats, not fatal.
func LoadRuleSet(path string) (*RuleSet, LoadStats, error) {
	var stats LoadStats

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stats, fmt.Errorf("read rules file: %w", err)
	}
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, stats, fmt.Errorf("parse rules file: %w", err)
	}

	rs, stats := compileRules(file)
	if len(rs.phases) == 0 {
		return nil, stats, fmt.Errorf("no valid phase rules in %s", path)
	}
	return rs, stats, nil
}

// DefaultRuleSet returns the built-in pattern table.
func DefaultRuleSet() *RuleSet {
	rs, _ := compileRules(defaultRules)
	return rs
}

func compileRules(file RuleFile) (*RuleSet, LoadStats) {
	var stats LoadStats
	rs := &RuleSet{}

	for _, pr := range file.Phases {
		cp := compiledPhase{phase: pr.Phase, description: pr.Description}
		for _, p := range pr.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				stats.SkippedInvalid++
				continue
			}
			cp.patterns = append(cp.patterns, re)
			stats.Patterns++
		}
		if len(cp.patterns) > 0 {
			rs.phases = append(rs.phases, cp)
			stats.Phases++
		}
	}
	for _, p := range file.Dangerous {
		re, err := regexp.Compile(p)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rs.dangerous = append(rs.dangerous, re)
		stats.DangerousLoaded++
	}
	return rs, stats
}

var defaultRules = RuleFile{
	Phases: []PhaseRule{
		{
			Phase:       PhaseReconnaissance,
			Description: "System reconnaissance and information gathering",
			Patterns: []string{
				`whoami`, `id\b`, `uname`, `hostname`, `pwd`, `ls`, `dir`,
				`ps`, `netstat`, `ifconfig`, `ip\s+addr`, `arp`, `route`,
				`cat\s+/proc`, `cat\s+/etc/passwd`, `cat\s+/etc/shadow`,
				`w\b`, `who`, `last`, `lastlog`, `uptime`,
			},
		},
		{
			Phase:       PhaseCredentialAccess,
			Description: "Attempting to steal credentials or keys",
			Patterns: []string{
				`cat\s+.*passwd`, `cat\s+.*shadow`, `cat\s+.*\.ssh`,
				`grep.*password`, `find.*password`, `\.aws/credentials`,
				`\.bash_history`, `\.mysql_history`, `\.env`,
				`sudo\s+-l`, `ssh.*key`, `id_rsa`, `authorized_keys`,
			},
		},
		{
			Phase:       PhasePersistence,
			Description: "Establishing persistence mechanisms",
			Patterns: []string{
				`crontab`, `systemctl`, `service\s+`, `rc\.local`, `\.bashrc`,
				`\.profile`, `autostart`, `init\.d`, `systemd`,
				`ssh.*authorized_keys`, `adduser`, `useradd`,
			},
		},
		{
			Phase:       PhasePrivilegeEscalation,
			Description: "Attempting privilege escalation",
			Patterns: []string{
				`sudo`, `su\s+`, `chmod.*777`, `chmod.*\+s`,
				`find.*perm`, `getcap`, `setcap`,
				`/etc/sudoers`, `pkexec`, `polkit`,
			},
		},
		{
			Phase:       PhaseDefenseEvasion,
			Description: "Hiding tracks and evading detection",
			Patterns: []string{
				`rm\s+.*history`, `history\s+-c`, `unset\s+HISTFILE`,
				`kill.*rsyslog`, `systemctl.*disable`, `iptables.*DROP`,
				`pkill`, `killall`, `base64`, `echo.*\|.*sh`,
			},
		},
		{
			Phase:       PhaseDiscovery,
			Description: "Exploring system and network",
			Patterns: []string{
				`find`, `locate`, `which`, `whereis`,
				`cat\s+/proc`, `lsof`, `ss\b`, `nmap`, `nc\s+`, `telnet`,
				`curl.*metadata`, `wget.*metadata`, `aws\s+`, `docker\s+ps`,
			},
		},
		{
			Phase:       PhaseLateralMovement,
			Description: "Attempting to move to other systems",
			Patterns: []string{
				`ssh\s+`, `scp\s+`, `rsync`, `nc\s+-l`, `socat`,
				`\.ssh/config`, `ssh-keygen`, `ssh-copy-id`,
			},
		},
		{
			Phase:       PhaseCollection,
			Description: "Collecting data for exfiltration",
			Patterns: []string{
				`tar\s+`, `zip`, `gzip`, `7z`, `rar`,
				`cp\s+.*/tmp`, `mv\s+.*/tmp`, `dd\s+if=`,
				`find.*-name.*\.`, `grep.*-r`, `cat.*\.sql`,
				`mysqldump`, `pg_dump`, `mongodump`,
			},
		},
		{
			Phase:       PhaseExfiltration,
			Description: "Exfiltrating data from system",
			Patterns: []string{
				`curl.*-x\s+post`, `wget.*--post`, `nc.*>`, `scp.*@`,
				`ftp`, `tftp`, `rsync.*@`, `base64`, `xxd`,
				`curl.*pastebin`, `curl.*discord`, `curl.*telegram`,
			},
		},
		{
			Phase:       PhaseExploitation,
			Description: "Downloading or executing exploits",
			Patterns: []string{
				`wget.*\.sh`, `curl.*\.sh.*\|.*sh`, `bash\s+-i`,
				`python.*-c`, `perl.*-e`, `ruby.*-e`, `php.*-r`,
				`nc.*-e`, `/bin/sh`, `/bin/bash`, `mknod`,
				`busybox`, `/dev/tcp`,
			},
		},
		{
			Phase:       PhaseMalwareDeployment,
			Description: "Installing or running malware",
			Patterns: []string{
				`chmod.*\+x`, `\./[a-z0-9]+$`, `nohup`, `&\s*$`,
				`screen\s+-dm`, `tmux`, `disown`,
				`miner`, `cryptonight`, `xmrig`, `\./xmr`,
			},
		},
	},
	Dangerous: []string{
		`rm\s+-rf\s+/`,
		`:\(\)\{\s*:\|:&\s*\};:`, // fork bomb
		`dd\s+if=/dev/zero`, `mkfs`, `fdisk`,
		`iptables.*flush`, `init\s+0`, `shutdown`, `reboot`,
		`curl.*\|.*sh`, `wget.*\|.*sh`,
	},
}
