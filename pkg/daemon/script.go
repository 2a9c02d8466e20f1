package daemon

// ReceiverPort is where the local receiver listens and where deployed
// daemons POST (typically through a reverse SSH tunnel).
const ReceiverPort = 19999

// collectorScript is the POSIX shell collector deployed to remote
// hosts. It samples /proc and df once per interval and POSTs the JSON
// document to the receiver on localhost. HOST_ID is injected by the
// deployer at start time.
const collectorScript = `#!/bin/sh
# ratterm metrics collector
HOST_ID="${HOST_ID:-0}"
INTERVAL="${INTERVAL:-1}"
URL="http://localhost:19999/metrics"

read_cpu() {
    set -- $(cat /proc/loadavg 2>/dev/null)
    LOAD1="${1:-0}"; LOAD5="${2:-0}"; LOAD15="${3:-0}"
    CORES=$(nproc 2>/dev/null || echo 1)
}

read_mem() {
    MEM_TOTAL=$(awk '/^MemTotal:/ {print int($2/1024)}' /proc/meminfo 2>/dev/null)
    MEM_AVAIL=$(awk '/^MemAvailable:/ {print int($2/1024)}' /proc/meminfo 2>/dev/null)
    if [ -z "$MEM_AVAIL" ]; then
        MEM_AVAIL=$(awk '/^MemFree:/ {print int($2/1024)}' /proc/meminfo 2>/dev/null)
    fi
    SWAP_TOTAL=$(awk '/^SwapTotal:/ {print int($2/1024)}' /proc/meminfo 2>/dev/null)
    SWAP_FREE=$(awk '/^SwapFree:/ {print int($2/1024)}' /proc/meminfo 2>/dev/null)
    SWAP_USED=$((${SWAP_TOTAL:-0} - ${SWAP_FREE:-0}))
    MEM_TOTAL="${MEM_TOTAL:-0}"; MEM_AVAIL="${MEM_AVAIL:-0}"; SWAP_TOTAL="${SWAP_TOTAL:-0}"
}

read_disk() {
    set -- $(df -BG / 2>/dev/null | awk 'NR==2 {gsub("G",""); print $2, $3}')
    DISK_TOTAL="${1:-0}"; DISK_USED="${2:-0}"
}

read_gpu() {
    GPU_JSON=""
    if command -v nvidia-smi >/dev/null 2>&1; then
        LINE=$(nvidia-smi --query-gpu=name,utilization.gpu,memory.used,memory.total,temperature.gpu --format=csv,noheader,nounits 2>/dev/null | head -1)
        if [ -n "$LINE" ]; then
            NAME=$(echo "$LINE" | cut -d, -f1 | sed 's/^ *//;s/ *$//')
            USAGE=$(echo "$LINE" | cut -d, -f2 | tr -d ' ')
            MUSED=$(echo "$LINE" | cut -d, -f3 | tr -d ' ')
            MTOTAL=$(echo "$LINE" | cut -d, -f4 | tr -d ' ')
            TEMP=$(echo "$LINE" | cut -d, -f5 | tr -d ' ')
            GPU_JSON=",\"gpu\":{\"gpu_type\":\"nvidia\",\"name\":\"$NAME\",\"usage\":${USAGE:-0},\"mem_used\":${MUSED:-0},\"mem_total\":${MTOTAL:-0},\"temp\":${TEMP:-0}}"
        fi
    elif command -v rocm-smi >/dev/null 2>&1; then
        USAGE=$(rocm-smi --showuse 2>/dev/null | awk -F: '/GPU use/ {gsub(/[ %]/,"",$NF); print $NF; exit}')
        TEMP=$(rocm-smi --showtemp 2>/dev/null | awk -F: '/Temperature/ {gsub(/[ c]/,"",$NF); print $NF; exit}')
        GPU_JSON=",\"gpu\":{\"gpu_type\":\"amd\",\"name\":\"amd\",\"usage\":${USAGE:-0},\"mem_used\":0,\"mem_total\":0,\"temp\":${TEMP:-0}}"
    elif command -v vcgencmd >/dev/null 2>&1; then
        TEMP=$(vcgencmd measure_temp 2>/dev/null | sed "s/temp=//;s/'C//")
        GPU_JSON=",\"gpu\":{\"gpu_type\":\"videocore\",\"name\":\"videocore\",\"usage\":0,\"mem_used\":0,\"mem_total\":0,\"temp\":${TEMP:-0}}"
    fi
}

post() {
    if command -v curl >/dev/null 2>&1; then
        curl -s -m 5 -X POST -H 'Content-Type: application/json' -d "$1" "$URL" >/dev/null 2>&1
    elif command -v wget >/dev/null 2>&1; then
        wget -q -T 5 -O /dev/null --post-data="$1" --header='Content-Type: application/json' "$URL" 2>/dev/null
    fi
}

while true; do
    read_cpu
    read_mem
    read_disk
    read_gpu
    TS=$(date +%s)
    BODY="{\"host_id\":\"$HOST_ID\",\"ts\":$TS,\"cpu\":{\"load\":[$LOAD1,$LOAD5,$LOAD15],\"cores\":$CORES},\"mem\":{\"total\":$MEM_TOTAL,\"avail\":$MEM_AVAIL,\"swap_total\":$SWAP_TOTAL,\"swap_used\":$SWAP_USED},\"disk\":{\"total\":$DISK_TOTAL,\"used\":$DISK_USED}$GPU_JSON}"
    post "$BODY"
    sleep "$INTERVAL"
done
`
