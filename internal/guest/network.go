package guest

import "fmt"

func hostsFile(hostname, domain string) string {
	return fmt.Sprintf(`127.0.0.1 localhost
127.0.1.1 %s.%s %s

# The following lines are desirable for IPv6 capable hosts
::1 ip6-localhost ip6-loopback
fe00::0 ip6-localnet
ff00::0 ip6-mcastprefix
ff02::1 ip6-allnodes
ff02::2 ip6-allrouters
ff02::3 ip6-allhosts
`, hostname, domain, hostname)
}

// policy-rc.d that keeps package scripts from starting daemons in the chroot.
const policyRCD = `#!/bin/sh

while true; do
    case "$1" in
        -*)
            shift
            ;;
        makedev)
            exit 0
            ;;
        x11-common)
            exit 0
            ;;
        *)
            exit 101
            ;;
    esac
done
`

const kernelImgConf = `do_symlinks = yes
relative_links = yes
do_bootfloppy = no
do_initrd = yes
link_in_boot = no
do_bootloader = no
`
